package sdp

import (
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// AttributeID identifies one attribute slot in a service record.
type AttributeID uint16

// Record is one service record: a handle plus an attribute-id-keyed set
// of values, matched against ServiceSearch patterns and returned by
// ServiceAttribute/ServiceSearchAttribute requests.
type Record struct {
	Handle     uint32
	Attributes map[AttributeID]Element
}

// Server holds a set of service records and answers SDP requests against
// them, including continuation-state chunking for oversized responses
// (§4.4.2).
type Server struct {
	mu      sync.RWMutex
	records map[uint32]*Record

	// MaxResponseBytes bounds a single response chunk's attribute-list
	// byte count, forcing continuation when a result would exceed it.
	MaxResponseBytes int

	continuations *lru.Cache[string, []byte]
}

// NewServer constructs an empty Server. Continuation-state blobs for
// in-progress chunked responses are held in a bounded LRU so a client
// that abandons a transaction can't leak server memory.
func NewServer() *Server {
	c, _ := lru.New[string, []byte](256)
	return &Server{
		records:          make(map[uint32]*Record),
		MaxResponseBytes: 1024,
		continuations:    c,
	}
}

// AddRecord installs or replaces a record.
func (s *Server) AddRecord(r *Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[r.Handle] = r
}

// RemoveRecord deletes a record by handle.
func (s *Server) RemoveRecord(handle uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, handle)
}

// HandleRequest decodes one inbound PDU and returns the response PDU to
// send back, matching transaction ids.
func (s *Server) HandleRequest(raw []byte) []byte {
	pdu, err := ParsePDU(raw)
	if err != nil {
		log.WithError(err).Warn("dropping malformed SDP request")
		return nil
	}
	var resp PDU
	switch pdu.ID {
	case PDUServiceSearchRequest:
		resp = s.handleServiceSearch(pdu)
	case PDUServiceAttributeRequest:
		resp = s.handleServiceAttribute(pdu)
	case PDUServiceSearchAttributeRequest:
		resp = s.handleServiceSearchAttribute(pdu)
	default:
		resp = s.errorResponse(pdu.TransactionID, ErrInvalidRequestSyntax)
	}
	return resp.Marshal()
}

func (s *Server) errorResponse(txID uint16, code uint16) PDU {
	return PDU{ID: PDUErrorResponse, TransactionID: txID, Params: ErrorResponseParams{ErrorCode: code}.Marshal()}
}

func (s *Server) handleServiceSearch(req PDU) PDU {
	elems, n, err := Parse(req.Params)
	if err != nil || elems.Type != TypeSequence {
		return s.errorResponse(req.TransactionID, ErrInvalidRequestSyntax)
	}
	rest := req.Params[n:]
	if len(rest) < 3 {
		return s.errorResponse(req.TransactionID, ErrInvalidPDUSize)
	}
	maxRecords := binary.BigEndian.Uint16(rest[0:2])
	contLen := int(rest[2])
	if len(rest) < 3+contLen {
		return s.errorResponse(req.TransactionID, ErrInvalidPDUSize)
	}
	cont := rest[3 : 3+contLen]

	matches := s.matchingHandles(elems.Seq)
	if len(matches) > int(maxRecords) {
		matches = matches[:maxRecords]
	}

	key := fmt.Sprintf("search:%d", req.TransactionID)
	start := 0
	if len(cont) > 0 {
		if v, ok := s.continuations.Get(key); ok {
			start = int(binary.BigEndian.Uint32(v))
		} else {
			return s.errorResponse(req.TransactionID, ErrInvalidContinuationState)
		}
	}

	chunkMax := s.MaxResponseBytes / 4
	if chunkMax < 1 {
		chunkMax = 1
	}
	end := start + chunkMax
	if end > len(matches) {
		end = len(matches)
	}
	chunk := matches[start:end]

	params := make([]byte, 4)
	binary.BigEndian.PutUint16(params[0:2], uint16(len(matches)))
	binary.BigEndian.PutUint16(params[2:4], uint16(len(chunk)))
	for _, h := range chunk {
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, h)
		params = append(params, b...)
	}
	if end < len(matches) {
		state := make([]byte, 4)
		binary.BigEndian.PutUint32(state, uint32(end))
		s.continuations.Add(key, state)
		params = append(params, byte(4))
		params = append(params, state...)
	} else {
		s.continuations.Remove(key)
		params = append(params, 0)
	}
	return PDU{ID: PDUServiceSearchResponse, TransactionID: req.TransactionID, Params: params}
}

func (s *Server) handleServiceAttribute(req PDU) PDU {
	if len(req.Params) < 6 {
		return s.errorResponse(req.TransactionID, ErrInvalidPDUSize)
	}
	handle := binary.BigEndian.Uint32(req.Params[0:4])
	s.mu.RLock()
	rec, ok := s.records[handle]
	s.mu.RUnlock()
	if !ok {
		return s.errorResponse(req.TransactionID, ErrInvalidServiceRecordHandle)
	}
	idsElem, n, err := Parse(req.Params[6:])
	if err != nil {
		return s.errorResponse(req.TransactionID, ErrInvalidRequestSyntax)
	}
	rest := req.Params[6+n:]
	return s.chunkedAttributeResponse(req.TransactionID, rest, attributesForRecord(rec, idsElem))
}

func (s *Server) handleServiceSearchAttribute(req PDU) PDU {
	patternElem, n, err := Parse(req.Params)
	if err != nil || patternElem.Type != TypeSequence {
		return s.errorResponse(req.TransactionID, ErrInvalidRequestSyntax)
	}
	rest := req.Params[n:]
	idsElem, n2, err := Parse(rest)
	if err != nil {
		return s.errorResponse(req.TransactionID, ErrInvalidRequestSyntax)
	}
	contArea := rest[n2:]

	var out []Element
	for _, h := range s.matchingHandles(patternElem.Seq) {
		s.mu.RLock()
		rec := s.records[h]
		s.mu.RUnlock()
		attrs := attributesForRecord(rec, idsElem)
		out = append(out, NewSequence(attrs...))
	}
	return s.chunkedAttributeResponse(req.TransactionID, contArea, out)
}

// attributesForRecord returns the matching attributes as alternating
// [id, value] elements sorted by ascending attribute id (§4.4.2).
func attributesForRecord(rec *Record, idsElem Element) []Element {
	if rec == nil {
		return nil
	}
	ranges := decodeAttributeIDList(idsElem)
	var ids []AttributeID
	for id := range rec.Attributes {
		if idInRanges(id, ranges) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	var out []Element
	for _, id := range ids {
		out = append(out, NewUint(2, uint64(id)), rec.Attributes[id])
	}
	return out
}

func decodeAttributeIDList(e Element) []AttributeIDRange {
	var out []AttributeIDRange
	for _, c := range e.Seq {
		if c.width == 2 {
			out = append(out, AttributeIDRange{Start: uint16(c.Uint), End: uint16(c.Uint)})
		} else {
			out = append(out, AttributeIDRange{Start: uint16(c.Uint >> 16), End: uint16(c.Uint)})
		}
	}
	return out
}

func idInRanges(id AttributeID, ranges []AttributeIDRange) bool {
	for _, r := range ranges {
		if uint16(id) >= r.Start && uint16(id) <= r.End {
			return true
		}
	}
	return false
}

func (s *Server) chunkedAttributeResponse(txID uint16, contArea []byte, attrs []Element) PDU {
	if len(contArea) < 1 {
		return s.errorResponse(txID, ErrInvalidPDUSize)
	}
	contLen := int(contArea[0])
	if len(contArea) < 1+contLen {
		return s.errorResponse(txID, ErrInvalidPDUSize)
	}
	cont := contArea[1 : 1+contLen]

	var full []byte
	for _, a := range attrs {
		full = append(full, a.Marshal()...)
	}

	key := fmt.Sprintf("attr:%d", txID)
	start := 0
	if len(cont) > 0 {
		if v, ok := s.continuations.Get(key); ok {
			start = int(binary.BigEndian.Uint32(v))
		} else {
			return s.errorResponse(txID, ErrInvalidContinuationState)
		}
	}
	end := start + s.MaxResponseBytes
	if end > len(full) {
		end = len(full)
	}
	chunk := full[start:end]

	params := make([]byte, 2)
	binary.BigEndian.PutUint16(params, uint16(len(chunk)))
	params = append(params, chunk...)
	if end < len(full) {
		state := make([]byte, 4)
		binary.BigEndian.PutUint32(state, uint32(end))
		s.continuations.Add(key, state)
		params = append(params, byte(4))
		params = append(params, state...)
	} else {
		s.continuations.Remove(key)
		params = append(params, 0)
	}
	return PDU{ID: PDUServiceAttributeResponse, TransactionID: txID, Params: params}
}

// matchingHandles returns, sorted by handle, every record matching the
// pattern: every UUID in pattern must appear somewhere in some attribute
// value, recursing into Sequence/Alternative (§4.4.2).
func (s *Server) matchingHandles(pattern []Element) []uint32 {
	var patternUUIDs [][]byte
	for _, p := range pattern {
		if p.Type == TypeUUID {
			patternUUIDs = append(patternUUIDs, p.Bytes)
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []uint32
	for handle, rec := range s.records {
		if recordMatches(rec, patternUUIDs) {
			out = append(out, handle)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func recordMatches(rec *Record, patternUUIDs [][]byte) bool {
	for _, want := range patternUUIDs {
		found := false
		for _, v := range rec.Attributes {
			if elementContainsUUID(v, want) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func elementContainsUUID(e Element, want []byte) bool {
	if e.Type == TypeUUID && bytesEqual(e.Bytes, want) {
		return true
	}
	if e.Type == TypeSequence || e.Type == TypeAlternative {
		for _, c := range e.Seq {
			if elementContainsUUID(c, want) {
				return true
			}
		}
	}
	return false
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
