package a

type T struct {
	a, b int64
}

func same(p *T) {
	p.a = 1
	p.a = 2 // want `write check is covered by write at`
}

func call(p *T) {
	p.a = 1
	g(p)
	p.a = 2
}

func fields(p *T) {
	p.a = 1
	p.b = 2
}

func g(p *T) {
	p.b++ // want `write check is covered by read at`
}
