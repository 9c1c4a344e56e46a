package content

import (
	"reflect"
	"testing"
	"time"

	"pgregory.net/rapid"
)

func TestEntityCacheAbsentVersusLoadedEmpty(t *testing.T) {
	c := NewEntityCache[Question]()

	if _, ok := c.Get(1); ok {
		t.Fatalf("expected absent entry before Set")
	}

	c.Set(1, nil)
	got, ok := c.Get(1)
	if !ok {
		t.Fatalf("expected loaded entry after Set(nil)")
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}

	c.Invalidate(1)
	if _, ok := c.Get(1); ok {
		t.Fatalf("expected absent entry after Invalidate")
	}
}

func TestEntityCacheSetReplacesWholesale(t *testing.T) {
	c := NewEntityCache[AnswerOption]()
	c.Set(5, []AnswerOption{{ID: 1, QuestionID: 5}, {ID: 2, QuestionID: 5}})
	c.Set(5, []AnswerOption{{ID: 3, QuestionID: 5}})

	got, _ := c.Get(5)
	if len(got) != 1 || got[0].ID != 3 {
		t.Fatalf("expected only the second set, got %+v", got)
	}
}

func TestEntityCacheReturnsCopies(t *testing.T) {
	c := NewEntityCache[AnswerOption]()
	in := []AnswerOption{{ID: 1, Content: "Paris"}}
	c.Set(1, in)
	in[0].Content = "mutated input"

	got, _ := c.Get(1)
	got[0].Content = "mutated output"

	again, _ := c.Get(1)
	if again[0].Content != "Paris" {
		t.Fatalf("cache shares memory with callers: %+v", again)
	}
}

func TestEntityCacheMaxAge(t *testing.T) {
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	c := NewEntityCache[Question](WithMaxAge(time.Minute), WithClock(func() time.Time { return now }))

	c.Set(1, []Question{{ID: 10}})
	now = now.Add(59 * time.Second)
	if _, ok := c.Get(1); !ok {
		t.Fatalf("expected entry within max age")
	}
	now = now.Add(2 * time.Second)
	if _, ok := c.Get(1); ok {
		t.Fatalf("expected entry to expire")
	}
	if keys := c.Keys(); len(keys) != 0 {
		t.Fatalf("expected expired entry hidden from Keys, got %v", keys)
	}
}

func TestEntityCacheFindAndClear(t *testing.T) {
	c := NewEntityCache[Question]()
	c.Set(1, []Question{{ID: 10, ExamID: 1}, {ID: 11, ExamID: 1}})
	c.Set(2, []Question{{ID: 20, ExamID: 2}})

	q, key, ok := c.Find(func(q Question) bool { return q.ID == 20 })
	if !ok || key != 2 || q.ExamID != 2 {
		t.Fatalf("unexpected find result q=%+v key=%d ok=%v", q, key, ok)
	}
	if _, _, ok := c.Find(func(q Question) bool { return q.ID == 99 }); ok {
		t.Fatalf("expected no match")
	}
	if keys := c.Keys(); !reflect.DeepEqual(keys, []int64{1, 2}) {
		t.Fatalf("unexpected keys %v", keys)
	}

	c.Clear()
	if keys := c.Keys(); len(keys) != 0 {
		t.Fatalf("expected no keys after Clear, got %v", keys)
	}
}

// The cache behaves like a map from key to the last Set value.
func TestEntityCacheMatchesMapModel(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		c := NewEntityCache[int]()
		model := map[int64][]int{}

		steps := rapid.IntRange(1, 60).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			key := rapid.Int64Range(0, 5).Draw(t, "key")
			switch rapid.IntRange(0, 3).Draw(t, "op") {
			case 0:
				children := rapid.SliceOfN(rapid.Int(), 0, 4).Draw(t, "children")
				c.Set(key, children)
				model[key] = append([]int{}, children...)
			case 1:
				c.Invalidate(key)
				delete(model, key)
			case 2:
				c.Clear()
				model = map[int64][]int{}
			case 3:
				got, ok := c.Get(key)
				want, wantOK := model[key]
				if ok != wantOK {
					t.Fatalf("key %d: ok=%v, want %v", key, ok, wantOK)
				}
				if wantOK && (len(got) != len(want) || (len(want) > 0 && !reflect.DeepEqual(got, want))) {
					t.Fatalf("key %d: got %v, want %v", key, got, want)
				}
			}
		}
	})
}
