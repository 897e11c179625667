package store

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"donormatch/pkg/domain"
)

func TestMemoryStoreChatOrderAndLimit(t *testing.T) {
	s := NewMemoryStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		if err := s.AppendChatMessage(domain.ChatMessage{
			ID: fmt.Sprintf("m%d", i), DonorID: "d1", Role: "donor",
			Content: fmt.Sprintf("msg %d", i), CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	_ = s.AppendChatMessage(domain.ChatMessage{ID: "other", DonorID: "d2", Role: "donor", Content: "x"})

	msgs, err := s.ListChatMessages("d1", 3)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 3 || msgs[0].ID != "m2" || msgs[2].ID != "m4" {
		t.Fatalf("unexpected window: %+v", msgs)
	}
	all, _ := s.ListChatMessages("d1", 0)
	if len(all) != 5 {
		t.Fatalf("expected full thread, got %d", len(all))
	}
	ids, _ := s.ListChatDonorIDs()
	if len(ids) != 2 || ids[0] != "d1" || ids[1] != "d2" {
		t.Fatalf("unexpected donor ids: %v", ids)
	}
}

func TestMemoryStoreRecordEventMovesSnapshot(t *testing.T) {
	s := NewMemoryStore()
	now := time.Now().UTC()
	if err := s.RecordEvent(domain.OpportunityEvent{ID: "e1", DonorID: "d1", OpportunityKey: "r1", Type: "save", CreatedAt: now}, "saved"); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := s.RecordEvent(domain.OpportunityEvent{ID: "e2", DonorID: "d1", OpportunityKey: "r1", Type: "pass", CreatedAt: now}, "passed"); err != nil {
		t.Fatalf("record: %v", err)
	}
	_ = s.RecordEvent(domain.OpportunityEvent{ID: "e3", DonorID: "d2", OpportunityKey: "r1", Type: "save", CreatedAt: now}, "saved")

	st, ok, err := s.GetState("d1", "r1")
	if err != nil || !ok {
		t.Fatalf("get state: ok=%v err=%v", ok, err)
	}
	if st.State != "passed" {
		t.Fatalf("expected passed, got %q", st.State)
	}
	evs, _ := s.ListEvents("d1", "r1")
	if len(evs) != 2 || evs[0].ID != "e1" {
		t.Fatalf("unexpected events: %+v", evs)
	}
	byOpp, _ := s.ListEventsByOpportunity("r1")
	if len(byOpp) != 3 {
		t.Fatalf("expected 3 events for opportunity, got %d", len(byOpp))
	}
	all, _ := s.ListAllStates()
	if len(all) != 2 || all[0].DonorID != "d1" {
		t.Fatalf("unexpected states: %+v", all)
	}
}

func TestMemoryStoreShareTokenUnique(t *testing.T) {
	s := NewMemoryStore()
	if err := s.SaveProfile(domain.DonorProfile{DonorID: "d1", ShareToken: "tok"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.SaveProfile(domain.DonorProfile{DonorID: "d2", ShareToken: "tok"}); err == nil {
		t.Fatalf("expected duplicate share token error")
	}
	p, ok, _ := s.GetProfileByShareToken("tok")
	if !ok || p.DonorID != "d1" {
		t.Fatalf("lookup by token failed: %+v", p)
	}
	if _, ok, _ := s.GetProfileByShareToken(""); ok {
		t.Fatalf("empty token must not resolve")
	}
}

func TestMemoryStoreListRequestsHidesArchived(t *testing.T) {
	s := NewMemoryStore()
	_ = s.SaveRequest(domain.FundingRequest{ID: "a", Status: domain.RequestActive})
	_ = s.SaveRequest(domain.FundingRequest{ID: "b", Status: domain.RequestArchived})
	active, _ := s.ListRequests(false)
	if len(active) != 1 || active[0].ID != "a" {
		t.Fatalf("unexpected active list: %+v", active)
	}
	all, _ := s.ListRequests(true)
	if len(all) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(all))
	}
}

func TestMemoryStoreWithDonorLockSerializes(t *testing.T) {
	s := NewMemoryStore()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.WithDonorLock("d1", func(tx Store) error {
				msgs, err := tx.ListChatMessages("d1", 0)
				if err != nil {
					return err
				}
				return tx.AppendChatMessage(domain.ChatMessage{
					ID: fmt.Sprintf("m%d", len(msgs)), DonorID: "d1", Content: fmt.Sprint(i),
				})
			})
			if err != nil {
				t.Errorf("with lock: %v", err)
			}
		}(i)
	}
	wg.Wait()
	msgs, _ := s.ListChatMessages("d1", 0)
	seen := map[string]bool{}
	for _, m := range msgs {
		if seen[m.ID] {
			t.Fatalf("duplicate id %s: reads and writes interleaved", m.ID)
		}
		seen[m.ID] = true
	}
	if len(msgs) != 20 {
		t.Fatalf("expected 20 messages, got %d", len(msgs))
	}
}
