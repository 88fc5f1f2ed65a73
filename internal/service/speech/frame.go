package speech

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
)

// 火山引擎语音接口的二进制帧格式：4 字节头部、可选序号、可选事件信息、负载长度与负载

const protocolVersion = 0x1

type msgType uint8

const (
	msgFullClient  msgType = 0x1
	msgAudioOnly   msgType = 0x2
	msgFullServer  msgType = 0x9
	msgAudioServer msgType = 0xB
	msgError       msgType = 0xF
)

type msgFlags uint8

const (
	flagNone        msgFlags = 0x0
	flagPositiveSeq msgFlags = 0x1
	flagLastNoSeq   msgFlags = 0x2
	flagNegativeSeq msgFlags = 0x3
	flagEvent       msgFlags = 0x4

	seqMask msgFlags = 0x3
)

const (
	serialNone uint8 = 0x0
	serialJSON uint8 = 0x1

	compressNone uint8 = 0x0
	compressGzip uint8 = 0x1
)

type event int32

const (
	eventStartConnection    event = 1
	eventFinishConnection   event = 2
	eventConnectionStarted  event = 50
	eventConnectionFailed   event = 51
	eventConnectionFinished event = 52
	eventSessionStarted     event = 150
	eventSessionFinished    event = 152
	eventSessionFailed      event = 153
)

type frame struct {
	kind        msgType
	flags       msgFlags
	serial      uint8
	compression uint8
	seq         int32
	event       event
	sessionID   string
	connectID   string
	code        uint32
	payload     []byte
}

func (f *frame) hasSeq() bool {
	s := f.flags & seqMask
	return s == flagPositiveSeq || s == flagNegativeSeq
}

func (f *frame) hasEvent() bool {
	return f.flags&flagEvent != 0
}

// last 是否为最后一帧
func (f *frame) last() bool {
	s := f.flags & seqMask
	return s == flagLastNoSeq || s == flagNegativeSeq
}

// body 返回解压后的负载
func (f *frame) body() ([]byte, error) {
	if f.compression != compressGzip || len(f.payload) == 0 {
		return f.payload, nil
	}
	r, err := gzip.NewReader(bytes.NewReader(f.payload))
	if err != nil {
		return nil, fmt.Errorf("gzip reader: %w", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gzip read: %w", err)
	}
	return out, nil
}

func (f *frame) marshal() []byte {
	var buf bytes.Buffer
	buf.Write([]byte{
		protocolVersion<<4 | 0x1,
		uint8(f.kind)<<4 | uint8(f.flags),
		f.serial<<4 | f.compression,
		0x00,
	})

	if f.hasSeq() {
		writeUint32(&buf, uint32(f.seq))
	}
	if f.hasEvent() {
		writeUint32(&buf, uint32(f.event))
		if !f.event.connectionLevel() {
			writeString(&buf, f.sessionID)
		}
		if f.event.carriesConnectID() {
			writeString(&buf, f.connectID)
		}
	}
	if f.kind == msgError {
		writeUint32(&buf, f.code)
	}
	writeUint32(&buf, uint32(len(f.payload)))
	buf.Write(f.payload)
	return buf.Bytes()
}

func readFrame(data []byte) (*frame, error) {
	r := bytes.NewReader(data)

	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if v := header[0] >> 4; v != protocolVersion {
		return nil, fmt.Errorf("unsupported protocol version: %d", v)
	}
	if extra := int(header[0]&0x0F)*4 - 4; extra > 0 {
		if _, err := r.Seek(int64(extra), io.SeekCurrent); err != nil {
			return nil, fmt.Errorf("skip extended header: %w", err)
		}
	}

	f := &frame{
		kind:        msgType(header[1] >> 4),
		flags:       msgFlags(header[1] & 0x0F),
		serial:      header[2] >> 4,
		compression: header[2] & 0x0F,
	}

	if f.hasSeq() {
		v, err := readUint32(r, "sequence")
		if err != nil {
			return nil, err
		}
		f.seq = int32(v)
	}

	if f.hasEvent() {
		v, err := readUint32(r, "event")
		if err != nil {
			return nil, err
		}
		f.event = event(int32(v))
		if !f.event.connectionLevel() {
			if f.sessionID, err = readString(r, "session id"); err != nil {
				return nil, err
			}
		}
		if f.event.carriesConnectID() {
			if f.connectID, err = readString(r, "connect id"); err != nil {
				return nil, err
			}
		}
	}

	if f.kind == msgError {
		code, err := readUint32(r, "error code")
		if err != nil {
			return nil, err
		}
		f.code = code
	}

	size, err := readUint32(r, "payload size")
	if err != nil {
		return nil, err
	}
	if int64(size) > int64(r.Len()) {
		return nil, fmt.Errorf("payload size %d exceeds remaining %d bytes", size, r.Len())
	}
	if size > 0 {
		f.payload = make([]byte, size)
		if _, err := io.ReadFull(r, f.payload); err != nil {
			return nil, fmt.Errorf("read payload (expected %d bytes): %w", size, err)
		}
	}
	return f, nil
}

// clientRequest 构造开启 ASR/TTS 会话的 JSON 请求帧
func clientRequest(payload []byte, gzipped bool) (*frame, error) {
	f := &frame{kind: msgFullClient, serial: serialJSON, payload: payload}
	if gzipped {
		compressed, err := gzipBytes(payload)
		if err != nil {
			return nil, err
		}
		f.compression = compressGzip
		f.payload = compressed
	}
	return f, nil
}

// audioChunk 构造音频帧，最后一片使用负序号
func audioChunk(chunk []byte, seq int32, final bool) (*frame, error) {
	compressed, err := gzipBytes(chunk)
	if err != nil {
		return nil, err
	}
	f := &frame{kind: msgAudioOnly, compression: compressGzip, payload: compressed, seq: seq, flags: flagPositiveSeq}
	if final {
		f.flags = flagNegativeSeq
		f.seq = -seq
	}
	return f, nil
}

func (e event) connectionLevel() bool {
	switch e {
	case eventStartConnection, eventFinishConnection,
		eventConnectionStarted, eventConnectionFailed, eventConnectionFinished:
		return true
	}
	return false
}

func (e event) carriesConnectID() bool {
	switch e {
	case eventConnectionStarted, eventConnectionFailed, eventConnectionFinished:
		return true
	}
	return false
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, fmt.Errorf("gzip write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("gzip close: %w", err)
	}
	return buf.Bytes(), nil
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeString(buf *bytes.Buffer, s string) {
	writeUint32(buf, uint32(len(s)))
	buf.WriteString(s)
}

func readUint32(r io.Reader, what string) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, fmt.Errorf("read %s: %w", what, err)
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

// readString 读取带长度前缀的字符串，长度不得超过剩余字节
func readString(r *bytes.Reader, what string) (string, error) {
	n, err := readUint32(r, what+" size")
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	if int64(n) > int64(r.Len()) {
		return "", fmt.Errorf("%s size %d exceeds remaining %d bytes", what, n, r.Len())
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", fmt.Errorf("read %s: %w", what, err)
	}
	return string(b), nil
}
