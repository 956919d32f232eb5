package allocator

import (
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	plasmaerrors "github.com/plasmastore/plasmastore/pkg/errors"
)

const mb = 1 << 20

func TestAlignUp(t *testing.T) {
	tests := []struct {
		size, want int64
	}{
		{0, 64},
		{1, 64},
		{64, 64},
		{65, 128},
		{1000, 1024},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, AlignUp(tt.size), "AlignUp(%d)", tt.size)
	}
}

func TestHeapAllocator(t *testing.T) {
	t.Run("primary allocation counts requested size", func(t *testing.T) {
		h := NewHeapAllocator(1024)
		a, err := h.Allocate(100)
		require.NoError(t, err)

		assert.False(t, a.IsFallback)
		assert.Equal(t, int64(100), a.Size)
		assert.Equal(t, int64(128), a.MmapSize)
		assert.Len(t, a.Bytes(), 100)
		assert.Len(t, a.Mapped(), 128)
		assert.Zero(t, a.Address()%Alignment, "mapping not 64-byte aligned")
		assert.Equal(t, int64(100), h.Allocated())
		assert.Equal(t, int64(100), h.PrimaryAllocated())
		assert.Equal(t, int64(924), h.Available())

		require.NoError(t, h.Free(a))
		assert.Zero(t, h.Allocated())
	})

	t.Run("footprint exhaustion is an ordinary failure", func(t *testing.T) {
		h := NewHeapAllocator(1000)
		_, err := h.Allocate(600)
		require.NoError(t, err)

		_, err = h.Allocate(500)
		require.Error(t, err)
		assert.ErrorIs(t, err, plasmaerrors.ErrOutOfMemory)
		assert.Equal(t, int64(600), h.Allocated())
		assert.Equal(t, int64(1), h.Stats().NumFailedAllocs)
	})

	t.Run("double free is rejected", func(t *testing.T) {
		h := NewHeapAllocator(1024)
		a, err := h.Allocate(10)
		require.NoError(t, err)
		require.NoError(t, h.Free(a))

		err = h.Free(a)
		assert.ErrorIs(t, err, plasmaerrors.ErrInvalidRequest)
		assert.Zero(t, h.Allocated())
		assert.Error(t, h.Free(nil))
	})

	t.Run("zero byte allocation", func(t *testing.T) {
		h := NewHeapAllocator(0)
		a, err := h.Allocate(0)
		require.NoError(t, err)
		assert.Equal(t, int64(Alignment), a.MmapSize)
		assert.Empty(t, a.Bytes())
		assert.Zero(t, h.Allocated())
	})

	t.Run("fallback limit yields out of disk", func(t *testing.T) {
		h := NewHeapAllocator(0).WithFallbackLimit(100)
		_, err := h.FallbackAllocate(80)
		require.NoError(t, err)
		_, err = h.FallbackAllocate(80)
		assert.ErrorIs(t, err, plasmaerrors.ErrOutOfDisk)
	})

	t.Run("peak and counters", func(t *testing.T) {
		h := NewHeapAllocator(1000)
		a, _ := h.Allocate(300)
		b, _ := h.Allocate(400)
		require.NoError(t, h.Free(a))
		c, _ := h.FallbackAllocate(50)

		s := h.Stats()
		assert.Equal(t, int64(700), s.PeakBytes)
		assert.Equal(t, int64(3), s.NumAllocations)
		assert.Equal(t, int64(1), s.NumFallbackAllocs)
		assert.Equal(t, int64(1), s.NumFrees)
		assert.Equal(t, 2, s.LiveAllocations)
		assert.Equal(t, int64(450), s.BytesAllocated)
		assert.NotEqual(t, b.Fd, c.Fd)
	})

	t.Run("close drops everything", func(t *testing.T) {
		h := NewHeapAllocator(1000)
		_, _ = h.Allocate(10)
		require.NoError(t, h.Close())
		assert.Zero(t, h.Allocated())
		_, err := h.Allocate(10)
		assert.Error(t, err)
	})
}

// The footprint check must only ever compare primary bytes: fallback bytes
// never block a primary allocation.
func TestFallbackPassThrough(t *testing.T) {
	h := NewHeapAllocator(2 * mb)

	p1, err := h.Allocate(900 * 1024)
	require.NoError(t, err)
	p2, err := h.Allocate(900 * 1024)
	require.NoError(t, err)

	_, err = h.Allocate(mb)
	require.ErrorIs(t, err, plasmaerrors.ErrOutOfMemory)

	f1, err := h.FallbackAllocate(mb)
	require.NoError(t, err)
	assert.True(t, f1.IsFallback)
	assert.Equal(t, int64(mb), h.FallbackAllocated())
	assert.Equal(t, int64(1800*1024), h.PrimaryAllocated())

	f2, err := h.FallbackAllocate(mb)
	require.NoError(t, err)
	assert.Equal(t, int64(2*mb), h.FallbackAllocated())
	assert.Equal(t, h.PrimaryAllocated()+h.FallbackAllocated(), h.Allocated())

	require.NoError(t, h.Free(f2))
	require.NoError(t, h.Free(p1))
	assert.Equal(t, int64(mb), h.FallbackAllocated())

	p3, err := h.Allocate(900 * 1024)
	require.NoError(t, err)
	assert.False(t, p3.IsFallback)

	for _, a := range []*Allocation{p2, p3, f1} {
		require.NoError(t, h.Free(a))
	}
	assert.Zero(t, h.Allocated())
	assert.Zero(t, h.FallbackAllocated())
}

func TestConcurrentAllocationsNeverExceedLimit(t *testing.T) {
	const limit = 64 * 100
	h := NewHeapAllocator(limit)

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		got []*Allocation
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if a, err := h.Allocate(64); err == nil {
					mu.Lock()
					got = append(got, a)
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	assert.Len(t, got, 100)
	assert.Equal(t, int64(limit), h.PrimaryAllocated())
	for _, a := range got {
		require.NoError(t, h.Free(a))
	}
	assert.Zero(t, h.Allocated())
}

func TestNullAllocator(t *testing.T) {
	var n Allocator = NullAllocator{}
	_, err := n.Allocate(1)
	assert.ErrorIs(t, err, plasmaerrors.ErrOutOfMemory)
	_, err = n.FallbackAllocate(1)
	assert.ErrorIs(t, err, plasmaerrors.ErrOutOfDisk)
	assert.Error(t, n.Free(&Allocation{}))
}

func skipWithoutMmap(t *testing.T) {
	t.Helper()
	if runtime.GOOS != "linux" && runtime.GOOS != "darwin" {
		t.Skip("shared memory mappings unsupported on " + runtime.GOOS)
	}
}

func TestPlasmaAllocator(t *testing.T) {
	skipWithoutMmap(t)

	t.Run("rejects non-positive footprint", func(t *testing.T) {
		_, err := NewPlasmaAllocator(Config{}, nil)
		assert.ErrorIs(t, err, plasmaerrors.NewError(plasmaerrors.ErrCodeInvalidConfig, ""))
	})

	t.Run("anonymous primary mapping is writable", func(t *testing.T) {
		p, err := NewPlasmaAllocator(Config{FootprintLimit: mb, HugepageEnabled: true}, nil)
		require.NoError(t, err)
		defer p.Close()

		a, err := p.Allocate(1000)
		require.NoError(t, err)
		assert.Equal(t, -1, a.Fd)
		assert.Equal(t, int64(1024), a.MmapSize)

		copy(a.Bytes(), "payload")
		assert.Equal(t, "payload", string(a.Bytes()[:7]))
		assert.Equal(t, int64(1000), p.Allocated())
		assert.Equal(t, int64(mb), p.FootprintLimit())

		require.NoError(t, p.Free(a))
		assert.Error(t, p.Free(a))
		assert.Zero(t, p.Allocated())
	})

	t.Run("file backed primary directory", func(t *testing.T) {
		p, err := NewPlasmaAllocator(Config{FootprintLimit: mb, PrimaryDirectory: t.TempDir()}, nil)
		require.NoError(t, err)
		defer p.Close()

		a, err := p.Allocate(64)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, a.Fd, 0)
		require.NoError(t, p.Free(a))
	})

	t.Run("fallback overflow", func(t *testing.T) {
		p, err := NewPlasmaAllocator(Config{FootprintLimit: 4096, FallbackDirectory: t.TempDir()}, nil)
		require.NoError(t, err)
		defer p.Close()

		var primary []*Allocation
		for {
			a, err := p.Allocate(1024)
			if err != nil {
				require.ErrorIs(t, err, plasmaerrors.ErrOutOfMemory)
				break
			}
			primary = append(primary, a)
		}
		require.Len(t, primary, 4)
		before := p.PrimaryAllocated()

		f, err := p.FallbackAllocate(3000)
		require.NoError(t, err)
		assert.True(t, f.IsFallback)
		assert.Equal(t, int64(3000), p.FallbackAllocated())
		assert.Equal(t, before, p.PrimaryAllocated())
		copy(f.Bytes(), "spilled")

		require.NoError(t, p.Free(f))
		assert.Zero(t, p.FallbackAllocated())
	})

	t.Run("fallback without directory is out of disk", func(t *testing.T) {
		p, err := NewPlasmaAllocator(Config{FootprintLimit: 4096}, nil)
		require.NoError(t, err)
		_, err = p.FallbackAllocate(10)
		assert.ErrorIs(t, err, plasmaerrors.ErrOutOfDisk)
	})

	t.Run("close unmaps outstanding allocations", func(t *testing.T) {
		p, err := NewPlasmaAllocator(Config{FootprintLimit: mb, FallbackDirectory: t.TempDir()}, nil)
		require.NoError(t, err)
		_, err = p.Allocate(128)
		require.NoError(t, err)
		_, err = p.FallbackAllocate(128)
		require.NoError(t, err)

		require.NoError(t, p.Close())
		assert.Zero(t, p.Allocated())
		assert.Zero(t, p.Stats().LiveAllocations)
	})
}
