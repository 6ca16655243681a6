package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/alanyoungcy/parimutuel/internal/domain"
)

// EncodeMarket lays out m exactly as the program stores it, without padding.
func EncodeMarket(m domain.Market) ([]byte, error) {
	if len(m.Question) > domain.MaxQuestionLen {
		return nil, fmt.Errorf("codec: encode market: question is %d bytes, max %d", len(m.Question), domain.MaxQuestionLen)
	}
	buf := make([]byte, 0, MarketMaxSize)
	buf = append(buf, MarketDiscriminator[:]...)
	buf = append(buf, m.Creator[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, m.MarketID)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(m.Question)))
	buf = append(buf, m.Question...)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(m.ResolutionTime))
	buf = binary.LittleEndian.AppendUint64(buf, m.YesPool)
	buf = binary.LittleEndian.AppendUint64(buf, m.NoPool)
	buf = append(buf, boolByte(m.Resolved))
	if yes, ok := m.Outcome.Get(); ok {
		buf = append(buf, 1, boolByte(yes))
	} else {
		buf = append(buf, 0)
	}
	buf = append(buf, m.Bump)
	return buf, nil
}

// EncodeUserPosition lays out p exactly as the program stores it.
func EncodeUserPosition(p domain.UserPosition) []byte {
	buf := make([]byte, 0, UserPositionSize)
	buf = append(buf, UserPositionDiscriminator[:]...)
	buf = append(buf, p.Market[:]...)
	buf = append(buf, p.User[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, p.YesAmount)
	buf = binary.LittleEndian.AppendUint64(buf, p.NoAmount)
	buf = append(buf, boolByte(p.Claimed), p.Bump)
	return buf
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
