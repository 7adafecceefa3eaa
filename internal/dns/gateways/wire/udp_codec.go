// Package wire implements the DNS wire format (RFC 1035) used by every
// component that decodes or builds a raw UDP payload: the dispatcher, the
// precompiled table, and the upstream resolver.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/relaydns/dnscached/internal/dns/domain"
)

// maxIndirections bounds compression-pointer chasing so a crafted or
// corrupt packet can't force decodeName into an unbounded loop.
const maxIndirections = 10

// udpCodec implements DNSCodec for DNS-over-UDP messages.
type udpCodec struct{}

// NewUDPCodec returns a DNSCodec for standard DNS-over-UDP messages.
func NewUDPCodec() *udpCodec {
	return &udpCodec{}
}

// DecodeQuery parses an inbound query datagram. It rejects anything
// shorter than a header or carrying more than one question, per RFC 1035's
// single-question convention for this responder.
func (c *udpCodec) DecodeQuery(data []byte) (domain.Question, error) {
	if len(data) < 12 {
		return domain.Question{}, errors.New("query too short")
	}
	id := binary.BigEndian.Uint16(data[0:2])
	qdCount := binary.BigEndian.Uint16(data[4:6])
	if qdCount != 1 {
		return domain.Question{}, errors.New("expected exactly one question")
	}

	name, offset, err := decodeName(data, 12)
	if err != nil {
		return domain.Question{}, fmt.Errorf("failed to decode question name: %w", err)
	}
	if offset+4 > len(data) {
		return domain.Question{}, errors.New("truncated question")
	}
	qtype := binary.BigEndian.Uint16(data[offset : offset+2])
	qclass := binary.BigEndian.Uint16(data[offset+2 : offset+4])

	return domain.Question{
		ID:    id,
		Name:  name,
		Type:  domain.RRType(qtype),
		Class: domain.RRClass(qclass),
	}, nil
}

// EncodeResponse serializes a DNSResponse for the client-facing listener.
// Error responses carry zeroed section counts and no question or answer
// body; success responses echo a single question and its answer(s), using
// a compression pointer back to the question name.
func (c *udpCodec) EncodeResponse(resp domain.DNSResponse) ([]byte, error) {
	var buf bytes.Buffer

	flags := uint16(0x8180) | uint16(resp.RCode)
	_ = binary.Write(&buf, binary.BigEndian, resp.ID)
	_ = binary.Write(&buf, binary.BigEndian, flags)

	if resp.IsError() || len(resp.Answers) == 0 {
		_ = binary.Write(&buf, binary.BigEndian, uint16(0)) // QDCOUNT
		_ = binary.Write(&buf, binary.BigEndian, uint16(0)) // ANCOUNT
		_ = binary.Write(&buf, binary.BigEndian, uint16(0)) // NSCOUNT
		_ = binary.Write(&buf, binary.BigEndian, uint16(0)) // ARCOUNT
		return buf.Bytes(), nil
	}

	answerCount := len(resp.Answers)
	if answerCount > 65535 {
		return nil, fmt.Errorf("too many answer records: %d (max 65535)", answerCount)
	}
	_ = binary.Write(&buf, binary.BigEndian, uint16(1))           // QDCOUNT
	_ = binary.Write(&buf, binary.BigEndian, uint16(answerCount)) // ANCOUNT
	_ = binary.Write(&buf, binary.BigEndian, uint16(0))           // NSCOUNT
	_ = binary.Write(&buf, binary.BigEndian, uint16(0))           // ARCOUNT

	qname := resp.Answers[0].Name
	qnameWire, err := encodeDomainName(qname)
	if err != nil {
		return nil, err
	}
	const qnameOffset = 12 // QNAME always starts right after the 12-byte header
	buf.Write(qnameWire)
	_ = binary.Write(&buf, binary.BigEndian, uint16(resp.Answers[0].Type))
	_ = binary.Write(&buf, binary.BigEndian, uint16(resp.Answers[0].Class))

	for _, rr := range resp.Answers {
		if rr.Name == qname {
			// Pointer back to the question name: 0b11xxxxxx xxxxxxxx.
			buf.Write([]byte{0xC0 | byte(qnameOffset>>8), byte(qnameOffset & 0xFF)})
		} else {
			name, err := encodeDomainName(rr.Name)
			if err != nil {
				return nil, err
			}
			buf.Write(name)
		}
		_ = binary.Write(&buf, binary.BigEndian, uint16(rr.Type))
		_ = binary.Write(&buf, binary.BigEndian, uint16(rr.Class))
		_ = binary.Write(&buf, binary.BigEndian, uint32(rr.TTL()))

		dataLen := len(rr.Data)
		if dataLen > 65535 {
			return nil, fmt.Errorf("resource record data too large: %d bytes (max 65535)", dataLen)
		}
		_ = binary.Write(&buf, binary.BigEndian, uint16(dataLen))
		buf.Write(rr.Data)
	}

	return buf.Bytes(), nil
}

// EncodeQuery serializes an outgoing query for the upstream tier. Flags are
// a standard recursive query (RD=1); the question is always written in
// full, since there's nothing yet to point back to.
func (c *udpCodec) EncodeQuery(query domain.Question) ([]byte, error) {
	var buf bytes.Buffer

	_ = binary.Write(&buf, binary.BigEndian, query.ID)
	_ = binary.Write(&buf, binary.BigEndian, uint16(0x0100)) // RD=1
	_ = binary.Write(&buf, binary.BigEndian, uint16(1))      // QDCOUNT
	_ = binary.Write(&buf, binary.BigEndian, uint16(0))      // ANCOUNT
	_ = binary.Write(&buf, binary.BigEndian, uint16(0))      // NSCOUNT
	_ = binary.Write(&buf, binary.BigEndian, uint16(0))      // ARCOUNT

	name, err := encodeDomainName(query.Name)
	if err != nil {
		return nil, err
	}
	buf.Write(name)
	_ = binary.Write(&buf, binary.BigEndian, uint16(query.Type))
	_ = binary.Write(&buf, binary.BigEndian, uint16(query.Class))

	return buf.Bytes(), nil
}

// DecodeResponse parses a reply from an upstream server, validating the
// echoed transaction ID and extracting the answer section's records.
func (c *udpCodec) DecodeResponse(data []byte, expectedID uint16, now time.Time) (domain.DNSResponse, error) {
	if len(data) < 12 {
		return domain.DNSResponse{}, errors.New("response too short")
	}
	id := binary.BigEndian.Uint16(data[0:2])
	if id != expectedID {
		return domain.DNSResponse{}, fmt.Errorf("ID mismatch: expected %d, got %d", expectedID, id)
	}

	flags := binary.BigEndian.Uint16(data[2:4])
	rcode := domain.RCode(uint8(flags & 0x000F)) //nolint:gosec // masked to 4 bits, always fits uint8

	qdCount := binary.BigEndian.Uint16(data[4:6])
	anCount := binary.BigEndian.Uint16(data[6:8])

	offset := 12
	for i := 0; i < int(qdCount); i++ {
		_, newOffset, err := decodeName(data, offset)
		if err != nil {
			return domain.DNSResponse{}, fmt.Errorf("failed to skip question %d: %w", i, err)
		}
		offset = newOffset + 4 // QTYPE + QCLASS
		if offset > len(data) {
			return domain.DNSResponse{}, errors.New("truncated question")
		}
	}

	// Authority and additional sections, if present, are never read by
	// any tier of this responder, so they're left unparsed.
	answers, _, err := parseRecords(data, offset, int(anCount), now)
	if err != nil {
		return domain.DNSResponse{}, fmt.Errorf("failed to parse answers: %w", err)
	}

	return domain.DNSResponse{
		ID:      id,
		RCode:   rcode,
		Answers: answers,
	}, nil
}

// parseRecords reads count consecutive resource records starting at offset.
func parseRecords(data []byte, offset, count int, now time.Time) ([]domain.ResourceRecord, int, error) {
	records := make([]domain.ResourceRecord, 0, count)
	for i := 0; i < count; i++ {
		rr, newOffset, err := parseResourceRecord(data, offset, now)
		if err != nil {
			return nil, 0, fmt.Errorf("record %d: %w", i, err)
		}
		records = append(records, rr)
		offset = newOffset
	}
	return records, offset, nil
}

// parseResourceRecord extracts a single resource record at offset.
func parseResourceRecord(data []byte, offset int, now time.Time) (domain.ResourceRecord, int, error) {
	name, offset, err := decodeName(data, offset)
	if err != nil {
		return domain.ResourceRecord{}, 0, fmt.Errorf("failed to decode record name: %w", err)
	}
	if offset+10 > len(data) {
		return domain.ResourceRecord{}, 0, errors.New("truncated record header")
	}

	typ := binary.BigEndian.Uint16(data[offset : offset+2])
	class := binary.BigEndian.Uint16(data[offset+2 : offset+4])
	ttl := binary.BigEndian.Uint32(data[offset+4 : offset+8])
	rdLen := int(binary.BigEndian.Uint16(data[offset+8 : offset+10]))
	offset += 10

	if offset+rdLen > len(data) {
		return domain.ResourceRecord{}, 0, errors.New("truncated rdata")
	}
	rdata := make([]byte, rdLen)
	copy(rdata, data[offset:offset+rdLen])
	offset += rdLen

	rr, err := domain.NewCachedResourceRecord(name, domain.RRType(typ), domain.RRClass(class), ttl, rdata, now)
	if err != nil {
		return domain.ResourceRecord{}, 0, fmt.Errorf("invalid resource record: %w", err)
	}
	return rr, offset, nil
}

// decodeName decodes a domain name starting at offset, following
// compression pointers as defined in RFC 1035 ยง4.1.4. It returns the
// decoded name and the offset immediately following the name as it
// appears at the call site — which, for a name reached purely by
// pointer-following, is the byte after the first pointer taken, not
// wherever the pointer chain eventually bottoms out.
func decodeName(data []byte, offset int) (string, int, error) {
	var labels []string
	jumped := false
	returnOffset := offset
	indirections := 0

	for {
		if offset >= len(data) {
			return "", 0, errors.New("offset out of bounds")
		}
		length := int(data[offset])

		if length == 0 {
			offset++
			break
		}

		if length&0xC0 == 0xC0 {
			if offset+1 >= len(data) {
				return "", 0, errors.New("compression pointer out of bounds")
			}
			indirections++
			if indirections > maxIndirections {
				return "", 0, errors.New("too many compression pointer indirections")
			}
			ptr := int(binary.BigEndian.Uint16(data[offset:offset+2]) & 0x3FFF)
			if !jumped {
				returnOffset = offset + 2
				jumped = true
			}
			if ptr >= offset {
				return "", 0, errors.New("compression pointer does not point backward")
			}
			offset = ptr
			continue
		}

		if length&0xC0 != 0 {
			return "", 0, fmt.Errorf("reserved label length bits: 0x%02x", length)
		}

		offset++
		if offset+length > len(data) {
			return "", 0, errors.New("label extends past datagram end")
		}
		labels = append(labels, string(data[offset:offset+length]))
		offset += length
	}

	if jumped {
		offset = returnOffset
	}
	return strings.Join(labels, "."), offset, nil
}

// encodeDomainName encodes a domain name as length-prefixed labels
// terminated by a zero octet, without compression.
func encodeDomainName(name string) ([]byte, error) {
	var buf bytes.Buffer
	name = strings.TrimSuffix(name, ".")
	if name == "" {
		buf.WriteByte(0)
		return buf.Bytes(), nil
	}
	for _, label := range strings.Split(name, ".") {
		if len(label) == 0 || len(label) > 63 {
			return nil, fmt.Errorf("invalid label length: %q", label)
		}
		buf.WriteByte(byte(len(label)))
		buf.WriteString(label)
	}
	buf.WriteByte(0)
	return buf.Bytes(), nil
}

var _ DNSCodec = &udpCodec{}
