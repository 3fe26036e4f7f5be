// Package pix builds static PIX payment payloads (EMV QR tag-length-value
// text terminated by a CRC-16/CCITT checksum).
package pix

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/skip2/go-qrcode"
)

const (
	tagPayloadFormat  = "00"
	tagInitiation     = "01"
	tagMerchantInfo   = "26"
	tagCategoryCode   = "52"
	tagCurrency       = "53"
	tagAmount         = "54"
	tagCountry        = "58"
	tagMerchantName   = "59"
	tagMerchantCity   = "60"
	tagAdditionalData = "62"
	tagCRC            = "63"

	gui          = "br.gov.bcb.pix"
	currencyBRL  = "986"
	countryBR    = "BR"
	reusableCode = "12"
)

var ErrFieldTooLong = errors.New("pix: field value longer than 99 bytes")

// Merchant identifies the receiver of the payment.
type Merchant struct {
	Key  string
	Name string
	City string
}

// Payload is a static PIX charge.
type Payload struct {
	Merchant Merchant
	Amount   decimal.Decimal
	TxID     string
}

// Build renders the payload including its trailing CRC field.
func (p Payload) Build() (string, error) {
	var b strings.Builder
	w := func(tag, value string) error {
		if len(value) > 99 {
			return fmt.Errorf("%w: tag %s", ErrFieldTooLong, tag)
		}
		b.WriteString(field(tag, value))
		return nil
	}

	account := field("00", gui) + field("01", p.Merchant.Key)
	steps := []struct{ tag, value string }{
		{tagPayloadFormat, "01"},
		{tagInitiation, reusableCode},
		{tagMerchantInfo, account},
		{tagCategoryCode, "0000"},
		{tagCurrency, currencyBRL},
		{tagAmount, p.Amount.StringFixed(2)},
		{tagCountry, countryBR},
		{tagMerchantName, p.Merchant.Name},
		{tagMerchantCity, p.Merchant.City},
		{tagAdditionalData, field("05", p.TxID)},
	}
	for _, s := range steps {
		if err := w(s.tag, s.value); err != nil {
			return "", err
		}
	}

	b.WriteString(tagCRC + "04")
	payload := b.String()
	return payload + Checksum(payload), nil
}

func field(tag, value string) string {
	return fmt.Sprintf("%s%02d%s", tag, len(value), value)
}

// CRC16 is CRC-16/CCITT-FALSE: polynomial 0x1021, initial value 0xFFFF,
// no reflection, no final xor.
func CRC16(data string) uint16 {
	crc := uint16(0xFFFF)
	for i := 0; i < len(data); i++ {
		crc ^= uint16(data[i]) << 8
		for j := 0; j < 8; j++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// Checksum renders CRC16 as four uppercase hex digits.
func Checksum(data string) string {
	return fmt.Sprintf("%04X", CRC16(data))
}

// Valid reports whether code ends with a matching CRC field.
func Valid(code string) bool {
	if len(code) < 8 || code[len(code)-8:len(code)-4] != tagCRC+"04" {
		return false
	}
	return Checksum(code[:len(code)-4]) == code[len(code)-4:]
}

// NewTxID derives a transaction id from the last ten digits of the unix
// millisecond clock.
func NewTxID(t time.Time) string {
	ms := strconv.FormatInt(t.UnixMilli(), 10)
	if len(ms) > 10 {
		ms = ms[len(ms)-10:]
	}
	return ms
}

// QRCode renders code as a square PNG of size pixels.
func QRCode(code string, size int) ([]byte, error) {
	return qrcode.Encode(code, qrcode.Medium, size)
}
