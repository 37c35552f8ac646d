package server

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// codecName is the content subtype of the service ("application/cbor").
const codecName = "cbor"

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("server: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// cborCodec is a connect.Codec for the plain Go message structs in this
// package. No protobuf types are involved.
type cborCodec struct{}

func (cborCodec) Name() string { return codecName }

func (cborCodec) Marshal(msg any) ([]byte, error) {
	return cborEncMode.Marshal(msg)
}

func (cborCodec) Unmarshal(data []byte, msg any) error {
	return cbor.Unmarshal(data, msg)
}
