package player

import (
	"bytes"
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestUpload_SplitHeader(t *testing.T) {
	r := newRig(t, testConfig())

	body := wavBytes(1, 0, 2, 0, 3, 0)
	if err := r.c.StreamUploadStart(int64(len(body))); err != nil {
		t.Fatalf("StreamUploadStart failed: %v", err)
	}
	if err := r.c.StreamUploadWrite(body[:20]); err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	if err := r.c.StreamUploadWrite(body[20:]); err != nil {
		t.Fatalf("second write failed: %v", err)
	}

	st := r.c.Status()
	if st.Session == nil || st.Session.Received != 50 || st.Session.Total != 50 {
		t.Errorf("unexpected session info: %+v", st.Session)
	}

	if err := r.c.StreamUploadEnd(); err != nil {
		t.Fatalf("StreamUploadEnd failed: %v", err)
	}

	if got := r.dev.Data(); !bytes.Equal(got, []byte{1, 0, 2, 0, 3, 0}) {
		t.Errorf("sink got %x", got)
	}
	last := r.c.Status().LastSession
	if last == nil || last.Skipped != 44 || last.Forwarded != 6 {
		t.Errorf("last session = %+v, want skipped 44 forwarded 6", last)
	}
	if r.c.IsPlaying() {
		t.Error("still playing after end")
	}
	if got := r.trace.get(); !reflect.DeepEqual(got, fullTeardown) {
		t.Errorf("sequence = %v, want %v", got, fullTeardown)
	}
}

func TestUpload_WriteDoesNotModifyInput(t *testing.T) {
	r := newRig(t, testConfig())
	r.c.SetVolume(0.5)

	if err := r.c.StreamUploadStart(0); err != nil {
		t.Fatal(err)
	}
	body := wavBytes(0, 2, 0, 4)
	orig := append([]byte(nil), body...)
	if err := r.c.StreamUploadWrite(body); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(body, orig) {
		t.Error("upload write scaled the caller's bytes")
	}
	if err := r.c.StreamUploadEnd(); err != nil {
		t.Fatal(err)
	}
	if got := r.dev.Data(); !bytes.Equal(got, []byte{0, 1, 0, 2}) {
		t.Errorf("sink got %x", got)
	}
}

func TestUpload_LargerThanChunk(t *testing.T) {
	cfg := testConfig()
	cfg.ChunkSize = 16
	cfg.PoolBytes = 64
	r := newRig(t, cfg)

	pcm := bytes.Repeat([]byte{7, 0}, 100)
	if err := r.c.StreamUploadStart(0); err != nil {
		t.Fatal(err)
	}
	if err := r.c.StreamUploadWrite(wavBytes(pcm...)); err != nil {
		t.Fatal(err)
	}
	if err := r.c.StreamUploadEnd(); err != nil {
		t.Fatal(err)
	}
	if got := r.dev.Data(); !bytes.Equal(got, pcm) {
		t.Errorf("sink got %d bytes, want %d", len(got), len(pcm))
	}
}

func TestUpload_Abort(t *testing.T) {
	r := newRig(t, testConfig())

	if err := r.c.StreamUploadStart(1000); err != nil {
		t.Fatal(err)
	}
	if err := r.c.StreamUploadWrite(make([]byte, 10)); err != nil {
		t.Fatal(err)
	}
	if err := r.c.StreamUploadAbort(); err != nil {
		t.Fatalf("StreamUploadAbort failed: %v", err)
	}

	if r.c.IsPlaying() {
		t.Error("still playing after abort")
	}
	if r.c.Pool().InUse() != 0 {
		t.Errorf("pool in use = %d after abort", r.c.Pool().InUse())
	}
	if got := r.trace.get(); !reflect.DeepEqual(got, fullTeardown) {
		t.Errorf("sequence = %v, want %v", got, fullTeardown)
	}

	// The controller accepts a new session afterwards.
	s, err := r.c.PlayBuffer(wavBytes(1, 2))
	if err != nil {
		t.Fatalf("PlayBuffer after abort: %v", err)
	}
	waitDone(t, s)
}

func TestUpload_StopDropsRemainingWrites(t *testing.T) {
	r := newRig(t, testConfig())

	if err := r.c.StreamUploadStart(0); err != nil {
		t.Fatal(err)
	}
	if err := r.c.StreamUploadWrite(wavBytes(1, 0)); err != nil {
		t.Fatal(err)
	}
	if err := r.c.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if r.c.IsPlaying() {
		t.Error("IsPlaying true after Stop")
	}
	n := len(r.dev.Data())

	if err := r.c.StreamUploadWrite([]byte{9, 9, 9, 9}); err != nil {
		t.Errorf("write after stop = %v, want nil", err)
	}
	if err := r.c.StreamUploadEnd(); err != nil {
		t.Errorf("end after stop = %v, want nil", err)
	}
	if got := len(r.dev.Data()); got != n {
		t.Errorf("sink received %d bytes after stop", got-n)
	}

	// Once the stopped upload has ended, a stray write has no session.
	if err := r.c.StreamUploadWrite([]byte{1, 2}); !errors.Is(err, ErrNoSession) {
		t.Errorf("write with no upload = %v, want ErrNoSession", err)
	}
}

func TestUpload_WriteAfterEndReturns(t *testing.T) {
	r := newRig(t, testConfig())

	if err := r.c.StreamUploadStart(0); err != nil {
		t.Fatal(err)
	}
	r.c.mu.Lock()
	s := r.c.sess
	r.c.mu.Unlock()

	// A writer that looked the session up just before the upload ended.
	if err := r.c.StreamUploadEnd(); err != nil {
		t.Fatal(err)
	}
	n := len(r.dev.Data())

	done := make(chan struct{})
	go func() {
		r.c.writeUpload(s, wavBytes(1, 0, 2, 0))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("write on an ended upload did not return")
	}

	if got := len(r.dev.Data()); got != n {
		t.Errorf("sink received %d bytes after end", got-n)
	}
	if info := s.Info(); info.Received != 0 {
		t.Errorf("received = %d, want 0", info.Received)
	}
	if err := r.c.StreamUploadEnd(); !errors.Is(err, ErrNoSession) {
		t.Errorf("second end = %v, want ErrNoSession", err)
	}
}

func TestUpload_StopDuringBlockedWrite(t *testing.T) {
	for i := 0; i < 10; i++ {
		r := newRig(t, testConfig())
		r.dev.WriteDelay = 30 * time.Millisecond

		if err := r.c.StreamUploadStart(0); err != nil {
			t.Fatal(err)
		}

		errc := make(chan error, 1)
		go func() {
			errc <- r.c.StreamUploadWrite(wavBytes(make([]byte, 64)...))
		}()
		time.Sleep(10 * time.Millisecond)

		if err := r.c.Stop(); err != nil {
			t.Fatalf("round %d: Stop failed: %v", i, err)
		}
		if err := <-errc; err != nil {
			t.Errorf("round %d: in-flight write = %v, want nil", i, err)
		}
		if r.c.IsPlaying() {
			t.Errorf("round %d: IsPlaying true after Stop", i)
		}
		if got := r.trace.get(); !reflect.DeepEqual(got, fullTeardown) {
			t.Errorf("round %d: sequence = %v, want %v", i, got, fullTeardown)
		}

		// The uploader keeps sending; those calls are dropped quietly.
		if err := r.c.StreamUploadWrite([]byte{1, 2, 3, 4}); err != nil {
			t.Errorf("round %d: write after stop = %v, want nil", i, err)
		}
		if err := r.c.StreamUploadEnd(); err != nil {
			t.Errorf("round %d: end after stop = %v, want nil", i, err)
		}
		if r.c.Pool().InUse() != 0 {
			t.Errorf("round %d: pool in use = %d", i, r.c.Pool().InUse())
		}
	}
}

func TestUpload_NoSession(t *testing.T) {
	r := newRig(t, testConfig())

	if err := r.c.StreamUploadWrite([]byte{1, 2}); !errors.Is(err, ErrNoSession) {
		t.Errorf("write = %v, want ErrNoSession", err)
	}
	if err := r.c.StreamUploadEnd(); !errors.Is(err, ErrNoSession) {
		t.Errorf("end = %v, want ErrNoSession", err)
	}
}

func TestUpload_OtherSessionActive(t *testing.T) {
	r := newRig(t, testConfig())
	r.dev.WriteDelay = 5 * time.Millisecond

	if _, err := r.c.PlayTone(440, 10*time.Second); err != nil {
		t.Fatal(err)
	}
	if err := r.c.StreamUploadWrite([]byte{1, 2}); !errors.Is(err, ErrBusy) {
		t.Errorf("write during tone = %v, want ErrBusy", err)
	}
	if err := r.c.Stop(); err != nil {
		t.Fatal(err)
	}
}
