package decoder

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/solanatracker/data-api-sdk/models"
)

// Wire layout of the binary event payload, all multi-byte fields little-endian:
//
//	u32 walletCount
//	walletCount × { u8 length, length UTF-8 bytes }
//	u32 tradeCount
//	tradeCount × { u32 walletIndex, f32 amount, f32 priceUsd,
//	               f32 volume, u8 typeCode, u32 timeSeconds }
//
// typeCode 0 means buy, any other value means sell.
const tradeRecordSize = 21

var (
	// ErrTruncatedBuffer indicates the buffer is shorter than its declared
	// counts imply.
	ErrTruncatedBuffer = errors.New("event buffer shorter than declared counts")

	// ErrWalletIndexOutOfRange indicates a trade record referenced a wallet
	// index outside the wallet table.
	ErrWalletIndexOutOfRange = errors.New("trade references wallet index outside wallet table")

	// ErrWalletNameTooLong indicates a wallet address longer than the wire
	// format's one-byte length prefix can carry.
	ErrWalletNameTooLong = errors.New("wallet address exceeds 255 bytes")
)

// DecodeTradeEvents parses a binary event payload into an ordered sequence
// of trade events. An empty buffer decodes to an empty sequence. Malformed
// input is rejected without a partial result.
func DecodeTradeEvents(buf []byte) ([]models.TradeEvent, error) {
	if len(buf) == 0 {
		return []models.TradeEvent{}, nil
	}

	off := 0

	walletCount, err := readUint32(buf, &off)
	if err != nil {
		return nil, fmt.Errorf("wallet count: %w", err)
	}

	wallets := make([]string, 0, min(int(walletCount), len(buf)))
	for i := uint32(0); i < walletCount; i++ {
		if off >= len(buf) {
			return nil, fmt.Errorf("wallet %d length: %w", i, ErrTruncatedBuffer)
		}
		length := int(buf[off])
		off++
		if off+length > len(buf) {
			return nil, fmt.Errorf("wallet %d bytes: %w", i, ErrTruncatedBuffer)
		}
		wallets = append(wallets, string(buf[off:off+length]))
		off += length
	}

	tradeCount, err := readUint32(buf, &off)
	if err != nil {
		return nil, fmt.Errorf("trade count: %w", err)
	}

	if uint64(len(buf)-off) < uint64(tradeCount)*tradeRecordSize {
		return nil, fmt.Errorf("trade records: %w", ErrTruncatedBuffer)
	}

	events := make([]models.TradeEvent, 0, tradeCount)
	for i := uint32(0); i < tradeCount; i++ {
		rec := buf[off : off+tradeRecordSize]
		off += tradeRecordSize

		walletIndex := binary.LittleEndian.Uint32(rec[0:4])
		if walletIndex >= walletCount {
			return nil, fmt.Errorf("trade %d: %w (index %d, wallets %d)",
				i, ErrWalletIndexOutOfRange, walletIndex, walletCount)
		}

		tradeType := models.TradeBuy
		if rec[16] != 0 {
			tradeType = models.TradeSell
		}

		events = append(events, models.TradeEvent{
			Wallet:   wallets[walletIndex],
			Amount:   float64(math.Float32frombits(binary.LittleEndian.Uint32(rec[4:8]))),
			PriceUsd: float64(math.Float32frombits(binary.LittleEndian.Uint32(rec[8:12]))),
			Volume:   float64(math.Float32frombits(binary.LittleEndian.Uint32(rec[12:16]))),
			Type:     tradeType,
			TimeMs:   uint64(binary.LittleEndian.Uint32(rec[17:21])) * 1000,
		})
	}

	return events, nil
}

// EncodeTradeEvents serializes trade events into the binary event layout.
// The wallet table is built in first-seen order. Used by tests and by
// tooling that produces synthetic event payloads.
func EncodeTradeEvents(events []models.TradeEvent) ([]byte, error) {
	walletIndex := make(map[string]uint32)
	wallets := make([]string, 0)
	for _, ev := range events {
		if _, ok := walletIndex[ev.Wallet]; !ok {
			if len(ev.Wallet) > 255 {
				return nil, fmt.Errorf("wallet %q: %w", ev.Wallet, ErrWalletNameTooLong)
			}
			walletIndex[ev.Wallet] = uint32(len(wallets))
			wallets = append(wallets, ev.Wallet)
		}
	}

	size := 4
	for _, w := range wallets {
		size += 1 + len(w)
	}
	size += 4 + len(events)*tradeRecordSize

	buf := make([]byte, 0, size)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(wallets)))
	for _, w := range wallets {
		buf = append(buf, byte(len(w)))
		buf = append(buf, w...)
	}

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(events)))
	for _, ev := range events {
		buf = binary.LittleEndian.AppendUint32(buf, walletIndex[ev.Wallet])
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(float32(ev.Amount)))
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(float32(ev.PriceUsd)))
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(float32(ev.Volume)))
		if ev.Type == models.TradeBuy {
			buf = append(buf, 0)
		} else {
			buf = append(buf, 1)
		}
		buf = binary.LittleEndian.AppendUint32(buf, uint32(ev.TimeMs/1000))
	}

	return buf, nil
}

func readUint32(buf []byte, off *int) (uint32, error) {
	if *off+4 > len(buf) {
		return 0, ErrTruncatedBuffer
	}
	v := binary.LittleEndian.Uint32(buf[*off : *off+4])
	*off += 4
	return v, nil
}
