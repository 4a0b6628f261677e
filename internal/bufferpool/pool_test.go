package bufferpool

import "testing"

func TestAcquireReleaseIdempotence(t *testing.T) {
	p := New(1444, 4, 8)

	for i := 0; i < 100; i++ {
		buf := p.Acquire()
		if len(buf.Bytes()) != 1444 {
			t.Fatalf("buffer %d has length %d, want 1444", i, len(buf.Bytes()))
		}
		buf.Release()
	}

	if size := p.PoolSize(); size < 0 || size > 8 {
		t.Errorf("pool_size() = %d, want in [0,8]", size)
	}
}

func TestReleaseRespectsMaxPoolSize(t *testing.T) {
	p := New(64, 0, 2)

	bufs := make([]*Buffer, 5)
	for i := range bufs {
		bufs[i] = p.Acquire()
	}
	for _, b := range bufs {
		b.Release()
	}

	if size := p.PoolSize(); size != 2 {
		t.Errorf("pool_size() = %d, want 2", size)
	}
}

func TestResize(t *testing.T) {
	p := New(1444, 1, 4)
	buf := p.Acquire()
	buf.Resize(100)
	if len(buf.Bytes()) != 100 {
		t.Errorf("Resize(100) left length %d", len(buf.Bytes()))
	}
}

func TestAcquireWithEmptyPoolAllocates(t *testing.T) {
	p := New(128, 0, 4)
	buf := p.Acquire()
	if len(buf.Bytes()) != 128 {
		t.Errorf("freshly allocated buffer length = %d, want 128", len(buf.Bytes()))
	}
}
