package builtins

import (
	"fmt"

	starkcurve "github.com/consensys/gnark-crypto/ecc/stark-curve"
	"github.com/consensys/gnark-crypto/ecc/stark-curve/ecdsa"

	"github.com/cairo-vm/cairo-vm-go/pkg/vm/memory"
)

// curveAlpha, curveBeta are the Stark curve's short-Weierstrass
// coefficients: y^2 = x^3 + alpha*x + beta (spec.md §4.4's "Starkware
// curve").
var (
	curveAlpha = memory.FeltFromUint64(1)
	curveBeta  = memory.FeltFromDecString(
		"3141592653589793238462643383279502884197169399375105820974944592307816406665",
	)
)

// verifyStarkSignature checks sig against msgHash for the public key
// encoded as a curve point's x-coordinate, the convention StarkWare's
// ECDSA variant uses (spec.md §4.4).
func verifyStarkSignature(pubKeyX, msgHash *memory.Felt, sig *StarkSignature) bool {
	point, err := recoverPointFromX(pubKeyX)
	if err != nil {
		return false
	}

	pub := ecdsa.PublicKey{A: point}
	rBytes := sig.R.Bytes()
	sBytes := sig.S.Bytes()
	sigBytes := append(append([]byte{}, rBytes[:]...), sBytes[:]...)

	hashBytes := msgHash.Bytes()
	ok, err := pub.Verify(sigBytes, hashBytes[:], nil)
	return err == nil && ok
}

// recoverPointFromX reconstructs the curve point whose x-coordinate is the
// registered public key, choosing the representative whose y-coordinate is
// the field's canonical square root (the convention StarkWare's reference
// implementation uses when only x is known).
func recoverPointFromX(x *memory.Felt) (starkcurve.G1Affine, error) {
	var rhs, x3 memory.Felt
	x3.Square(x).Mul(&x3, x)
	rhs.Mul(&curveAlpha, x).Add(&rhs, &x3).Add(&rhs, &curveBeta)

	var y memory.Felt
	if y.Sqrt(&rhs) == nil {
		return starkcurve.G1Affine{}, fmt.Errorf("x %s is not on the curve: no square root", x.String())
	}

	point := starkcurve.G1Affine{X: *x, Y: y}
	if !point.IsOnCurve() {
		return starkcurve.G1Affine{}, fmt.Errorf("x %s is not on the curve", x.String())
	}
	return point, nil
}
