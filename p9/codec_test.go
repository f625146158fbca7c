package p9

import (
	"bytes"
	"testing"
)

func roundTrip(t *testing.T, fc *Fcall) *Fcall {
	t.Helper()
	frame, err := Encode(fc, 0)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	frame2, err := Encode(got, 0)
	if err != nil {
		t.Fatalf("re-Encode: %v", err)
	}
	if !bytes.Equal(frame, frame2) {
		t.Fatalf("frame mismatch:\n%x\n%x", frame, frame2)
	}
	return got
}

func TestVersionRoundTrip(t *testing.T) {
	fc := &Fcall{Type: Tversion, Tag: NoTag, Msize: 8192, Version: Version}
	got := roundTrip(t, fc)
	if got.Msize != 8192 || got.Version != Version {
		t.Fatalf("got %+v", got)
	}
}

func TestAttachWalkReadRoundTrip(t *testing.T) {
	attach := &Fcall{Type: Tattach, Tag: 1, Fid: 1, Afid: NoFid, Uname: "glenda", Aname: "ctl", Uid: 1000}
	roundTrip(t, attach)

	walk := &Fcall{Type: Twalk, Tag: 2, Fid: 1, Newfid: 2, Wname: []string{"version"}}
	gotWalk := roundTrip(t, walk)
	if len(gotWalk.Wname) != 1 || gotWalk.Wname[0] != "version" {
		t.Fatalf("got %+v", gotWalk)
	}

	read := &Fcall{Type: Rread, Tag: 3, Data: []byte("2.0.0\n")}
	gotRead := roundTrip(t, read)
	if string(gotRead.Data) != "2.0.0\n" {
		t.Fatalf("got %q", gotRead.Data)
	}
}

func TestWalkExceedsMaxWElem(t *testing.T) {
	names := make([]string, MaxWElem+1)
	for i := range names {
		names[i] = "a"
	}
	_, err := Encode(&Fcall{Type: Twalk, Tag: 1, Wname: names}, 0)
	if err == nil {
		t.Fatalf("expected error for walk exceeding MAXWELEM")
	}
	if _, ok := err.(*InvalidArgumentError); !ok {
		t.Fatalf("expected InvalidArgumentError, got %T", err)
	}
}

func TestEncodeRejectsOversizeFrame(t *testing.T) {
	fc := &Fcall{Type: Twrite, Tag: 1, Fid: 1, Data: make([]byte, 100)}
	_, err := Encode(fc, 32)
	if err == nil {
		t.Fatalf("expected error for frame exceeding msize")
	}
}

func TestDecodeRejectsTruncatedFrame(t *testing.T) {
	fc := &Fcall{Type: Tattach, Tag: 1, Fid: 1, Afid: NoFid, Uname: "x", Aname: "ctl", Uid: 1}
	frame, err := Encode(fc, 0)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	_, err = Decode(frame[:len(frame)-2])
	if err == nil {
		t.Fatalf("expected error decoding truncated frame")
	}
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	frame := []byte{7, 0, 0, 0, 255, 0, 0}
	_, err := Decode(frame)
	if err == nil {
		t.Fatalf("expected error for unknown type")
	}
}

func TestReaddirRoundTrip(t *testing.T) {
	fc := &Fcall{
		Type: Rreaddir,
		Tag:  1,
		Entries: []DirEntry{
			{Qid: Qid{Type: QTDIR, Path: 1}, Offset: 1, Type: QTDIR, Name: "a"},
			{Qid: Qid{Path: 2}, Offset: 2, Type: 0, Name: "b"},
		},
	}
	got := roundTrip(t, fc)
	if len(got.Entries) != 2 || got.Entries[0].Name != "a" || got.Entries[1].Name != "b" {
		t.Fatalf("got %+v", got.Entries)
	}
}

func TestGetattrRoundTrip(t *testing.T) {
	fc := &Fcall{
		Type:    Rgetattr,
		Tag:     1,
		ReqMask: GetattrBasic,
		Stat:    Stat{Qid: Qid{Type: QTDIR, Path: 42}, Mode: 0755, Uid: 1, Gid: 1, Size: 4096},
	}
	got := roundTrip(t, fc)
	if got.Stat.Qid.Path != 42 || got.Stat.Mode != 0755 {
		t.Fatalf("got %+v", got.Stat)
	}
}
