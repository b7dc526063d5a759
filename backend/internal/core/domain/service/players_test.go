package service

import "testing"

func TestPlayerRegistry_Lifecycle(t *testing.T) {
	r := NewPlayerRegistry()

	p, restored := r.Connect("a")
	if restored || p.ID != 1 {
		t.Fatalf("first connect = %+v, restored %v", p, restored)
	}

	// Повторное подключение того же клиента не создает новую запись
	if again, _ := r.Connect("a"); again.ID != p.ID {
		t.Errorf("duplicate connect id = %d", again.ID)
	}

	_, _ = r.SetName("a", "Anna")
	if !r.IsOnline(p.ID) || r.OnlineCount() != 1 {
		t.Error("player must be online")
	}

	if _, ok := r.Disconnect("a"); !ok {
		t.Fatal("disconnect failed")
	}
	if r.IsOnline(p.ID) || r.OnlineCount() != 0 {
		t.Error("player still online after disconnect")
	}
	if _, ok := r.Lookup("a"); ok {
		t.Error("logged out player visible through Lookup")
	}
	if _, ok := r.SetName("a", "x"); ok {
		t.Error("SetName succeeded for logged out player")
	}

	back, restored := r.Connect("a")
	if !restored || back.ID != p.ID || back.Name != "Anna" {
		t.Errorf("restored = %+v, %v", back, restored)
	}

	b, _ := r.Connect("b")
	online := r.Online()
	if len(online) != 2 || online[0].ID != p.ID || online[1].ID != b.ID {
		t.Errorf("online = %+v", online)
	}
}
