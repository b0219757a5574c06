package format

// 内置 RDF 格式。声明顺序即缓存候选的转换优先级。
var (
	Turtle        = Format{Key: "turtle", MediaType: "text/turtle", Extension: "ttl", MachineReadable: true}
	NTriples      = Format{Key: "ntriples", MediaType: "application/n-triples", Extension: "nt", MachineReadable: true}
	NQuads        = Format{Key: "nquads", MediaType: "application/n-quads", Extension: "nq", MachineReadable: true}
	TriG          = Format{Key: "trig", MediaType: "application/trig", Extension: "trig", MachineReadable: true}
	N3            = Format{Key: "n3", MediaType: "text/n3", Extension: "n3", MachineReadable: true}
	RDFXML        = Format{Key: "rdfxml", MediaType: "application/rdf+xml", Extension: "rdf", MachineReadable: true}
	JSONLD        = Format{Key: "jsonld", MediaType: "application/ld+json", Extension: "jsonld", MachineReadable: true}
	RDFJSON       = Format{Key: "rdfjson", MediaType: "application/rdf+json", Extension: "rj", MachineReadable: true}
	TriX          = Format{Key: "trix", MediaType: "application/trix", Extension: "trix", MachineReadable: true}
	OWLXML        = Format{Key: "owlxml", MediaType: "application/owl+xml", Extension: "owx", MachineReadable: true}
	OWLFunctional = Format{Key: "owlfunctional", MediaType: "text/owl-functional", Extension: "ofn", MachineReadable: true}
	HDT           = Format{Key: "hdt", MediaType: "application/vnd.hdt", Extension: "hdt", MachineReadable: true}
	YAMLLD        = Format{Key: "yamlld", MediaType: "application/ld+yaml", Extension: "yamlld", MachineReadable: true}
	HTML          = Format{Key: "html", MediaType: "text/html", Extension: "html", Display: true}
)

var builtin = newBuiltin()

func newBuiltin() *Table {
	t := NewTable()
	t.MustRegister(Turtle, "application/x-turtle")
	t.MustRegister(NTriples, "text/ntriples")
	t.MustRegister(NQuads, "text/x-nquads")
	t.MustRegister(TriG, "application/x-trig")
	t.MustRegister(N3, "text/rdf+n3")
	t.MustRegister(RDFXML)
	t.MustRegister(JSONLD)
	t.MustRegister(RDFJSON)
	t.MustRegister(TriX, "application/trix+xml")
	t.MustRegister(OWLXML)
	t.MustRegister(OWLFunctional)
	t.MustRegister(HDT)
	t.MustRegister(YAMLLD)
	t.MustRegister(HTML, "application/xhtml+xml")
	if err := t.SetDefault(Turtle.Key); err != nil {
		panic(err)
	}
	return t
}

// Builtin 返回进程共享的内置注册表。
func Builtin() *Table {
	return builtin
}
