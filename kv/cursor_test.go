package kv

import (
	"bytes"
	"testing"
)

func TestUniqueCursorOrdering(t *testing.T) {
	db := NewMemDB()
	tx, err := db.BeginRw()
	if err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"c", "a", "b"} {
		if err := tx.Put(CanonicalHeaders, []byte(k), []byte("v-"+k)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	ro, err := db.BeginRo()
	if err != nil {
		t.Fatal(err)
	}
	defer ro.Rollback()

	c, err := ro.Cursor(CanonicalHeaders)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	var got []string
	for k, v, err := c.First(); k != nil; k, v, err = c.Next() {
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, string(k)+"="+string(v))
	}
	want := []string{"a=v-a", "b=v-b", "c=v-c"}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("index %d: got %q want %q", i, got[i], want[i])
		}
	}
}

func TestDupSortCursor(t *testing.T) {
	db := NewMemDB()
	tx, err := db.BeginRw()
	if err != nil {
		t.Fatal(err)
	}
	acct := bytes.Repeat([]byte{0xAA}, 32)
	other := bytes.Repeat([]byte{0xBB}, 32)

	slots := [][]byte{{0x03}, {0x01}, {0x02}}
	for _, s := range slots {
		if err := PutDup(tx, HashedStorage, acct, s, []byte{0xFF}); err != nil {
			t.Fatal(err)
		}
	}
	if err := PutDup(tx, HashedStorage, other, []byte{0x01}, []byte{0x01}); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	ro, err := db.BeginRo()
	if err != nil {
		t.Fatal(err)
	}
	defer ro.Rollback()

	dc, err := ro.CursorDupSort(HashedStorage)
	if err != nil {
		t.Fatal(err)
	}
	defer dc.Close()

	if _, v, err := dc.SeekBothRange(acct, nil); err != nil || v == nil {
		t.Fatalf("SeekBothRange: v=%v err=%v", v, err)
	}

	var order [][]byte
	for sub, _, err := dc.NextDup(); sub != nil; sub, _, err = dc.NextDup() {
		if err != nil {
			t.Fatal(err)
		}
		order = append(order, sub)
	}
	if len(order) != 2 {
		t.Fatalf("expected 2 remaining dups after first, got %d", len(order))
	}
	if order[0][0] != 0x02 || order[1][0] != 0x03 {
		t.Fatalf("dup values not returned in sorted order: %v", order)
	}
}

func TestDeleteCurrentDuplicates(t *testing.T) {
	db := NewMemDB()
	tx, err := db.BeginRw()
	if err != nil {
		t.Fatal(err)
	}
	acct := bytes.Repeat([]byte{0xCC}, 32)
	for _, s := range [][]byte{{0x01}, {0x02}} {
		if err := PutDup(tx, HashedStorage, acct, s, []byte{0x01}); err != nil {
			t.Fatal(err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	rw, err := db.BeginRw()
	if err != nil {
		t.Fatal(err)
	}
	dc, err := rw.CursorDupSort(HashedStorage)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := dc.SeekBothRange(acct, nil); err != nil {
		t.Fatal(err)
	}
	if err := dc.DeleteCurrentDuplicates(); err != nil {
		t.Fatal(err)
	}
	dc.Close()
	if err := rw.Commit(); err != nil {
		t.Fatal(err)
	}

	ro, _ := db.BeginRo()
	defer ro.Rollback()
	dc2, _ := ro.CursorDupSort(HashedStorage)
	defer dc2.Close()
	if _, v, _ := dc2.SeekBothRange(acct, nil); v != nil {
		t.Fatalf("expected no remaining duplicates, got %v", v)
	}
}
