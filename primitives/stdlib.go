package primitives

import (
	stdaes "crypto/aes"
	stdecdh "crypto/ecdh"
	stdecdsa "crypto/ecdsa"
	"crypto/elliptic"
	stdrand "crypto/rand"
	stdsha256 "crypto/sha256"
	"errors"
	"io"
	"math/big"
)

// StdDigest is the standard-library SHA-256 backend.
type StdDigest struct{}

func (StdDigest) Sum256(data []byte, out []byte) {
	sum := stdsha256.Sum256(data)
	copy(out, sum[:])
}

// StdBlockCipher is the standard-library AES backend. It accepts both
// 16-byte (AES-128) and 32-byte (AES-256) keys; the protocol only ever
// loads 32-byte AES-256 keys for chain/header encryption, but the
// Poly1305-AES "s" derivation uses a 16-byte key slice.
type StdBlockCipher struct{}

func (StdBlockCipher) EncryptBlock(key, dst, src []byte) error {
	block, err := stdaes.NewCipher(key)
	if err != nil {
		return err
	}
	if len(src) != BlockSize || len(dst) != BlockSize {
		return errors.New("primitives: EncryptBlock requires exactly one AES block")
	}
	block.Encrypt(dst, src)
	return nil
}

// StdRandom is the standard-library CSPRNG backend. Seed is a no-op: the
// OS entropy source does not take caller-supplied seed material.
type StdRandom struct{}

func (StdRandom) Random(out []byte) error {
	_, err := io.ReadFull(stdrand.Reader, out)
	if err != nil {
		return ErrRNGFail
	}
	return nil
}

func (StdRandom) Seed([]byte) error { return nil }

var p256 = stdecdh.P256()
var p256Curve = elliptic.P256()

// StdECDH is the standard-library P-256 ECDH backend. Public keys are
// exchanged as the X-only, even-Y 32-byte encoding the protocol uses on
// the wire; crypto/ecdh's NIST-curve ECDH() already returns the raw
// affine X coordinate of the shared point with no hashing, which is
// exactly the "derive" contract the protocol needs.
type StdECDH struct {
	priv   *stdecdh.PrivateKey
	reader io.Reader
}

func NewStdECDH() KeyAgreement { return &StdECDH{reader: stdrand.Reader} }

// NewStdECDHWithReader builds an ECDH keypair that draws its randomness
// from reader instead of the OS CSPRNG, for reproducible test vectors.
func NewStdECDHWithReader(reader io.Reader) KeyAgreement {
	return &StdECDH{reader: reader}
}

func (e *StdECDH) Generate() (PublicKey, error) {
	for {
		priv, err := p256.GenerateKey(e.reader)
		if err != nil {
			return PublicKey{}, ErrRNGFail
		}
		x, y := unmarshalUncompressed(priv.PublicKey().Bytes())
		if y.Bit(0) == 0 {
			e.priv = priv
			var pk PublicKey
			x.FillBytes(pk[:])
			return pk, nil
		}
		// odd Y: this point cannot be represented in the X-only, even-Y
		// wire encoding, try another scalar.
	}
}

func (e *StdECDH) PublicKey() (PublicKey, error) {
	if e.priv == nil {
		return PublicKey{}, errors.New("primitives: no keypair loaded")
	}
	x, _ := unmarshalUncompressed(e.priv.PublicKey().Bytes())
	var pk PublicKey
	x.FillBytes(pk[:])
	return pk, nil
}

func (e *StdECDH) Derive(otherPublic PublicKey) ([]byte, error) {
	if e.priv == nil {
		return nil, errors.New("primitives: no keypair loaded")
	}
	pub, err := decompressEvenY(otherPublic)
	if err != nil {
		return nil, err
	}
	shared, err := e.priv.ECDH(pub)
	if err != nil {
		return nil, ErrVerifyFail
	}
	return shared, nil
}

func (e *StdECDH) Store() ([]byte, error) {
	if e.priv == nil {
		return nil, errors.New("primitives: no keypair loaded")
	}
	return e.priv.Bytes(), nil
}

func (e *StdECDH) Load(data []byte) error {
	priv, err := p256.NewPrivateKey(data)
	if err != nil {
		return ErrVerifyFail
	}
	e.priv = priv
	return nil
}

// decompressEvenY reconstructs a full P-256 point from its X-only wire
// representation, selecting the even-Y root per the protocol's convention.
func decompressEvenY(pk PublicKey) (*stdecdh.PublicKey, error) {
	x := new(big.Int).SetBytes(pk[:])
	params := p256Curve.Params()
	if x.Cmp(params.P) >= 0 {
		return nil, ErrVerifyFail
	}

	// y^2 = x^3 - 3x + b (mod p)
	y2 := new(big.Int).Exp(x, big.NewInt(3), params.P)
	threeX := new(big.Int).Mul(x, big.NewInt(3))
	y2.Sub(y2, threeX)
	y2.Add(y2, params.B)
	y2.Mod(y2, params.P)

	y := new(big.Int).ModSqrt(y2, params.P)
	if y == nil {
		return nil, ErrVerifyFail
	}
	if y.Bit(0) != 0 {
		y.Sub(params.P, y)
	}

	raw := elliptic.Marshal(p256Curve, x, y)
	pub, err := p256.NewPublicKey(raw)
	if err != nil {
		return nil, ErrVerifyFail
	}
	return pub, nil
}

func unmarshalUncompressed(raw []byte) (x, y *big.Int) {
	x, y = elliptic.Unmarshal(p256Curve, raw)
	return
}

// StdSigner is the standard-library P-256 ECDSA backend.
type StdSigner struct {
	priv   *stdecdsa.PrivateKey
	reader io.Reader
}

func NewStdSigner() Signer { return &StdSigner{reader: stdrand.Reader} }

// NewStdSignerWithReader builds an identity keypair that draws its
// randomness from reader instead of the OS CSPRNG, for reproducible test
// vectors.
func NewStdSignerWithReader(reader io.Reader) Signer {
	return &StdSigner{reader: reader}
}

func (s *StdSigner) Generate() error {
	for {
		priv, err := stdecdsa.GenerateKey(p256Curve, s.reader)
		if err != nil {
			return ErrRNGFail
		}
		if priv.PublicKey.Y.Bit(0) == 0 {
			s.priv = priv
			return nil
		}
		// odd Y: not representable in the X-only wire encoding, retry.
	}
}

func (s *StdSigner) PublicKey() (PublicKey, error) {
	if s.priv == nil {
		return PublicKey{}, errors.New("primitives: no identity loaded")
	}
	var pk PublicKey
	s.priv.PublicKey.X.FillBytes(pk[:])
	return pk, nil
}

func (s *StdSigner) Sign(data []byte) (Signature, error) {
	if s.priv == nil {
		return Signature{}, errors.New("primitives: no identity loaded")
	}
	digest := stdsha256.Sum256(data)
	r, sVal, err := stdecdsa.Sign(s.reader, s.priv, digest[:])
	if err != nil {
		return Signature{}, ErrRNGFail
	}
	var sig Signature
	r.FillBytes(sig[:ECNumSize])
	sVal.FillBytes(sig[ECNumSize:])
	return sig, nil
}

func (s *StdSigner) Verify(pub PublicKey, data []byte, sig Signature) bool {
	point, err := decompressEvenY(pub)
	if err != nil {
		return false
	}
	x, y := unmarshalUncompressed(point.Bytes())
	ecdsaPub := &stdecdsa.PublicKey{Curve: p256Curve, X: x, Y: y}
	digest := stdsha256.Sum256(data)
	r := new(big.Int).SetBytes(sig[:ECNumSize])
	sVal := new(big.Int).SetBytes(sig[ECNumSize:])
	return stdecdsa.Verify(ecdsaPub, digest[:], r, sVal)
}

func (s *StdSigner) Store() ([]byte, error) {
	if s.priv == nil {
		return nil, errors.New("primitives: no identity loaded")
	}
	out := make([]byte, ECNumSize)
	s.priv.D.FillBytes(out)
	return out, nil
}

func (s *StdSigner) Load(data []byte) error {
	d := new(big.Int).SetBytes(data)
	priv := new(stdecdsa.PrivateKey)
	priv.Curve = p256Curve
	priv.D = d
	priv.PublicKey.X, priv.PublicKey.Y = p256Curve.ScalarBaseMult(data)
	s.priv = priv
	return nil
}

// Default returns the standard-library-backed Services bundle: the one
// every production binary in this repo uses.
func Default() *Services {
	return &Services{
		Digest:  StdDigest{},
		Block:   StdBlockCipher{},
		Mac:     NewPoly1305AES(StdBlockCipher{}),
		Rand:    StdRandom{},
		NewECDH: NewStdECDH,
		Signer:  NewStdSigner,
	}
}
