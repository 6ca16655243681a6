package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"unicode/utf8"

	"github.com/alanyoungcy/parimutuel/internal/domain"
)

// reader walks a little-endian buffer and remembers the first failure.
// Every accessor is a no-op once err is set.
type reader struct {
	buf []byte
	off int
	err *DecodeError
}

func (r *reader) fail(kind ErrorKind, format string, args ...any) {
	if r.err == nil {
		r.err = &DecodeError{Kind: kind, Offset: r.off, Reason: fmt.Sprintf(format, args...)}
	}
}

func (r *reader) take(n int, field string) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || len(r.buf)-r.off < n {
		r.fail(ErrShort, "%s needs %d bytes, %d left", field, n, len(r.buf)-r.off)
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) discriminator(want Discriminator, name string) {
	b := r.take(DiscriminatorLen, "discriminator")
	if b == nil {
		return
	}
	if !bytes.Equal(b, want[:]) {
		r.off -= DiscriminatorLen
		r.fail(ErrDiscriminator, "got %x, want %s for %s", b, want, name)
	}
}

func (r *reader) address(field string) domain.Address {
	var a domain.Address
	copy(a[:], r.take(domain.AddressLen, field))
	return a
}

func (r *reader) u8(field string) uint8 {
	b := r.take(1, field)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u64(field string) uint64 {
	b := r.take(8, field)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *reader) i64(field string) int64 {
	return int64(r.u64(field))
}

func (r *reader) bool(field string) bool {
	v := r.u8(field)
	if v > 1 {
		r.off--
		r.fail(ErrInvalidBool, "%s byte is %d", field, v)
		return false
	}
	return v == 1
}

func (r *reader) optionBool(field string) domain.Outcome {
	tag := r.u8(field + " tag")
	switch {
	case r.err != nil:
		return domain.OutcomeUnset
	case tag == 0:
		return domain.OutcomeUnset
	case tag == 1:
		v := r.bool(field)
		if r.err != nil {
			return domain.OutcomeUnset
		}
		return domain.SomeOutcome(v)
	default:
		r.off--
		r.fail(ErrInvalidOption, "%s tag is %d", field, tag)
		return domain.OutcomeUnset
	}
}

func (r *reader) string(field string, maxLen int) string {
	lenBytes := r.take(4, field+" length")
	if lenBytes == nil {
		return ""
	}
	n := binary.LittleEndian.Uint32(lenBytes)
	if int64(n) > int64(len(r.buf)-r.off) {
		r.off -= 4
		r.fail(ErrStringLength, "%s declares %d bytes, %d left", field, n, len(r.buf)-r.off-4)
		return ""
	}
	if int(n) > maxLen {
		r.off -= 4
		r.fail(ErrStringLength, "%s declares %d bytes, max %d", field, n, maxLen)
		return ""
	}
	b := r.take(int(n), field)
	if !utf8.Valid(b) {
		r.off -= int(n)
		r.fail(ErrInvalidUTF8, "%s is not valid UTF-8", field)
		return ""
	}
	return string(b)
}

// DecodeMarket decodes a market account. Bytes after the last field are
// ignored. Any failure is a *DecodeError.
func DecodeMarket(addr domain.Address, data []byte) (domain.Market, error) {
	r := reader{buf: data}
	r.discriminator(MarketDiscriminator, "Market")
	m := domain.Market{
		Address:        addr,
		Creator:        r.address("creator"),
		MarketID:       r.u64("market_id"),
		Question:       r.string("question", domain.MaxQuestionLen),
		ResolutionTime: r.i64("resolution_time"),
		YesPool:        r.u64("yes_pool"),
		NoPool:         r.u64("no_pool"),
		Resolved:       r.bool("resolved"),
		Outcome:        r.optionBool("outcome"),
		Bump:           r.u8("bump"),
	}
	if r.err != nil {
		return domain.Market{}, r.err
	}
	return m, nil
}

// DecodeUserPosition decodes a position account. Bytes after the last field
// are ignored. Any failure is a *DecodeError.
func DecodeUserPosition(addr domain.Address, data []byte) (domain.UserPosition, error) {
	r := reader{buf: data}
	r.discriminator(UserPositionDiscriminator, "UserPosition")
	p := domain.UserPosition{
		Address:   addr,
		Market:    r.address("market"),
		User:      r.address("user"),
		YesAmount: r.u64("yes_amount"),
		NoAmount:  r.u64("no_amount"),
		Claimed:   r.bool("claimed"),
		Bump:      r.u8("bump"),
	}
	if r.err != nil {
		return domain.UserPosition{}, r.err
	}
	return p, nil
}
