package inflate

import "io"

// patchReader feeds one synthesized zero byte after the underlying reader is
// exhausted. Some writers omit the trailing byte a strict inflater expects;
// the extra byte lets such streams finish. It is supplied at most once.
type patchReader struct {
	r       io.Reader
	patched bool
}

func (p *patchReader) Read(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	n, err := p.r.Read(b)
	if err != io.EOF {
		return n, err
	}
	if n > 0 {
		return n, nil
	}
	if p.patched {
		return 0, io.EOF
	}
	p.patched = true
	b[0] = 0
	return 1, nil
}
