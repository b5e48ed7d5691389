package identity

import "testing"

func TestDerive(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		user    Session
		company Session
		want    Identity
	}{
		{name: "none", want: None},
		{name: "user only", user: Session{SubjectID: "u1"}, want: Identity{Kind: KindUser, ID: "u1"}},
		{name: "company only", company: Session{SubjectID: "c1"}, want: Identity{Kind: KindCompany, ID: "c1"}},
		{name: "user wins over company", user: Session{SubjectID: "u1"}, company: Session{SubjectID: "c1"}, want: Identity{Kind: KindUser, ID: "u1"}},
		{name: "whitespace id is none", user: Session{SubjectID: "   "}, want: None},
		{name: "trimmed id", user: Session{SubjectID: " u1 "}, want: Identity{Kind: KindUser, ID: "u1"}},
	}

	for _, tc := range cases {
		got := Derive(tc.user, tc.company)
		if !got.Equal(tc.want) {
			t.Fatalf("%s: Derive()=%+v want=%+v", tc.name, got, tc.want)
		}
	}
}

func TestIdentityEqual(t *testing.T) {
	t.Parallel()

	if !(Identity{}).Equal(None) {
		t.Fatalf("zero identity should equal None")
	}
	a := Identity{Kind: KindUser, ID: "u1"}
	b := Identity{Kind: KindCompany, ID: "u1"}
	if a.Equal(b) {
		t.Fatalf("identities with different kinds must differ")
	}
}

func TestStoreSubscribe(t *testing.T) {
	t.Parallel()

	st := NewStore()

	var seen []Identity
	cancel := st.Subscribe(func(id Identity) { seen = append(seen, id) })
	defer cancel()

	st.SetUser(Session{SubjectID: "u1"})
	st.SetCompany(Session{SubjectID: "c1"}) // user still wins: no change observed
	st.ClearUser()                          // flips to company
	st.ClearCompany()                       // flips to none

	want := []Identity{
		{Kind: KindUser, ID: "u1"},
		{Kind: KindCompany, ID: "c1"},
		None,
	}
	if len(seen) != len(want) {
		t.Fatalf("got %d notifications, want %d: %+v", len(seen), len(want), seen)
	}
	for i := range want {
		if !seen[i].Equal(want[i]) {
			t.Fatalf("notification %d: got %+v want %+v", i, seen[i], want[i])
		}
	}
}

func TestStoreSubscribeCancel(t *testing.T) {
	t.Parallel()

	st := NewStore()

	calls := 0
	cancel := st.Subscribe(func(Identity) { calls++ })
	st.SetUser(Session{SubjectID: "u1"})
	cancel()
	cancel() // idempotent
	st.ClearUser()

	if calls != 1 {
		t.Fatalf("calls=%d want=1", calls)
	}
}
