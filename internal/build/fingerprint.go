package build

import (
	"encoding/hex"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"

	"github.com/agentic-research/quire/internal/graph"
	"github.com/agentic-research/quire/internal/rule"
)

// Digest is a BLAKE3-256 hash.
type Digest [32]byte

func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// Short returns the first 12 hex characters, enough for log lines.
func (d Digest) Short() string {
	return d.String()[:12]
}

// Domain keys separate content digests from memo keys so a blob whose bytes
// happen to equal an encoded fingerprint can never collide with it.
var (
	contentDomain = [32]byte{
		'q', 'u', 'i', 'r', 'e', '.', 'b', 'l', 'o', 'b',
	}
	memoDomain = [32]byte{
		'q', 'u', 'i', 'r', 'e', '.', 'm', 'e', 'm', 'o',
	}
)

var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("build: CBOR encoder initialization failed: " + err.Error())
	}
}

// ContentDigest hashes blob bytes.
func ContentDigest(content []byte) Digest {
	return keyedHash(contentDomain, content)
}

func keyedHash(key [32]byte, data []byte) Digest {
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		panic("build: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	_, _ = hasher.Write(data)
	var d Digest
	copy(d[:], hasher.Sum(nil))
	return d
}

type inputRecord struct {
	Path    string `cbor:"1,keyasint"`
	Digest  []byte `cbor:"2,keyasint"`
	MIME    string `cbor:"3,keyasint"`
	Publish bool   `cbor:"4,keyasint"`
}

type fingerprintRecord struct {
	Rule   string        `cbor:"1,keyasint"`
	Kind   int           `cbor:"2,keyasint"`
	Path   string        `cbor:"3,keyasint"`
	Inputs []inputRecord `cbor:"4,keyasint"`
}

// Fingerprint identifies one rule invocation: the rule, the primary path
// (the output path for aggregates), and every blob the build function will
// see. Inputs are encoded in lexical path order.
func Fingerprint(r rule.Rule, p graph.Path, inputs rule.View) Digest {
	rec := fingerprintRecord{
		Rule: r.Name,
		Kind: int(r.Kind),
		Path: string(p),
	}
	for _, ip := range inputs.Paths() {
		b := inputs[ip]
		d := ContentDigest(b.Content)
		rec.Inputs = append(rec.Inputs, inputRecord{
			Path:    string(ip),
			Digest:  d[:],
			MIME:    b.MIME,
			Publish: b.Publish,
		})
	}
	data, err := encMode.Marshal(rec)
	if err != nil {
		// Only plain strings, bools and byte slices are encoded.
		panic("build: fingerprint encoding failed: " + err.Error())
	}
	return keyedHash(memoDomain, data)
}
