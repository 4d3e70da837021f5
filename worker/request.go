package worker

// Kind tags a request with its operation.
type Kind string

// Database engine worker request kinds.
const (
	KindInit         Kind = "init"
	KindAttach       Kind = "attach"
	KindDetach       Kind = "detach"
	KindExec         Kind = "exec"
	KindQueryByIDs   Kind = "query-by-ids"
	KindVectorSearch Kind = "vector-search"
)

// Embedding inference worker request kinds.
const (
	KindInitEncoder Kind = "init-encoder"
	KindEmbed       Kind = "embed"
	KindDispose     Kind = "dispose"
)

// Payload is one variant of the request union. Each kind carries exactly
// the fields it needs; there are no optional "only present for this kind"
// fields.
type Payload interface {
	Kind() Kind
}

// Request is a queued operation descriptor correlated by a caller-supplied
// id.
type Request struct {
	ID      string
	Payload Payload
}

// Response resolves exactly one Request, by id.
type Response struct {
	ID     string
	Result any
	Err    error
}

// InitPayload loads a database image. Base optionally overrides where
// relative image URLs resolve.
type InitPayload struct {
	URL  string
	Base string
}

func (InitPayload) Kind() Kind { return KindInit }

// AttachPayload attaches an embeddings image.
type AttachPayload struct {
	URL string
}

func (AttachPayload) Kind() Kind { return KindAttach }

// DetachPayload detaches the current embeddings image, if any.
type DetachPayload struct{}

func (DetachPayload) Kind() Kind { return KindDetach }

// ExecPayload runs a parameterized query with positional binding.
type ExecPayload struct {
	Query string
	Args  []any
}

func (ExecPayload) Kind() Kind { return KindExec }

// QueryByIDsPayload runs a caller-prebuilt lookup for the given entity ids.
type QueryByIDsPayload struct {
	IDs   []int64
	Query string
	Args  []any
}

func (QueryByIDsPayload) Kind() Kind { return KindQueryByIDs }

// VectorSearchPayload runs a nearest-neighbor search.
type VectorSearchPayload struct {
	Vector     []float32
	K          int
	Filter     string
	FilterArgs []any
}

func (VectorSearchPayload) Kind() Kind { return KindVectorSearch }

// InitEncoderPayload loads (or switches to) an encoder variant.
type InitEncoderPayload struct {
	Variant string
}

func (InitEncoderPayload) Kind() Kind { return KindInitEncoder }

// EmbedPayload converts text into a normalized embedding vector.
type EmbedPayload struct {
	Text string
}

func (EmbedPayload) Kind() Kind { return KindEmbed }

// DisposePayload releases the encoder session and tokenizer.
type DisposePayload struct{}

func (DisposePayload) Kind() Kind { return KindDispose }
