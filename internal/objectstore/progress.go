package objectstore

// progress counts bytes passing through it and reports the running total.
// It is both an io.Writer (for io.TeeReader) and an io.Reader, which is the
// shape minio-go expects for its upload progress hook.
type progress struct {
	fn     ProgressFunc
	total  int64
	loaded int64
}

func newProgress(fn ProgressFunc, total int64) *progress {
	if total < 0 {
		total = -1
	}
	return &progress{fn: fn, total: total}
}

func (p *progress) Write(b []byte) (int, error) {
	p.loaded += int64(len(b))
	if p.fn != nil {
		p.fn(p.loaded, p.total)
	}
	return len(b), nil
}

func (p *progress) Read(b []byte) (int, error) {
	return p.Write(b)
}
