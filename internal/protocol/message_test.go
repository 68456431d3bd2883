package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		opcode  Opcode
		payload []byte
	}{
		{"ping", OpPing, []byte("hello")},
		{"data request csv", OpDataRequest, []byte("01.02.2019 10:00:00,1,2\n")},
		{"binary payload", OpDataResponse, []byte{0x00, 0xff, 0x10, 0x80}},
		{"single byte", OpServerStatus, []byte{'x'}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := NewMessage(tt.opcode, tt.payload).Encode()
			if frame[0] != byte(tt.opcode) {
				t.Errorf("frame[0] = 0x%02x, want 0x%02x", frame[0], byte(tt.opcode))
			}

			msg, err := Decode(frame, 0)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if msg.Opcode() != tt.opcode {
				t.Errorf("opcode = %s, want %s", msg.Opcode(), tt.opcode)
			}
			if !bytes.Equal(msg.Payload(), tt.payload) {
				t.Errorf("payload = %v, want %v", msg.Payload(), tt.payload)
			}
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name    string
		frame   []byte
		maxSize int
		wantErr error
	}{
		{"empty", nil, 0, ErrFrameTooShort},
		{"opcode only", []byte{'0'}, 0, ErrFrameTooShort},
		{"over limit", []byte("0abcd"), 3, ErrMessageTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.frame, tt.maxSize)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Decode() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if _, err := Decode([]byte("0abc"), 3); err != nil {
		t.Errorf("payload at limit should decode, got %v", err)
	}
}

func TestMessageIsImmutable(t *testing.T) {
	payload := []byte("hello")
	msg := NewMessage(OpPing, payload)
	payload[0] = 'j'

	if string(msg.Payload()) != "hello" {
		t.Errorf("payload = %q, want hello", msg.Payload())
	}

	frame := []byte("0world")
	decoded, err := Decode(frame, 0)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	frame[1] = 'W'
	if string(decoded.Payload()) != "world" {
		t.Errorf("decoded payload = %q, want world", decoded.Payload())
	}
}

func TestValidate(t *testing.T) {
	if err := NewTextMessage(OpPing, "").Validate(10); !errors.Is(err, ErrEmptyPayload) {
		t.Errorf("empty payload error = %v, want %v", err, ErrEmptyPayload)
	}
	if err := NewTextMessage(OpPing, "12345").Validate(4); !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("oversize error = %v, want %v", err, ErrMessageTooLarge)
	}
	if err := NewTextMessage(OpPing, "1234").Validate(4); err != nil {
		t.Errorf("payload at limit error = %v", err)
	}
}

func TestIsText(t *testing.T) {
	if !NewTextMessage(OpPing, "hello").IsText() {
		t.Error("ascii payload should be text")
	}
	if NewMessage(OpPing, []byte{0xff, 0xfe}).IsText() {
		t.Error("invalid utf-8 payload should be binary")
	}
}

func TestOpcode(t *testing.T) {
	if OpPing.Number() != 0 || OpDataRequest.Number() != 1 || OpDataResponse.Number() != 2 {
		t.Error("opcode numbers do not match their digits")
	}
	if OpPing.String() != "0" {
		t.Errorf("OpPing.String() = %q, want 0", OpPing.String())
	}
	if Opcode(0x7e).String() != "0x7E" {
		t.Errorf("Opcode(0x7e).String() = %q", Opcode(0x7e).String())
	}
	if OpDataResponse.Name() != "DATA_RESPONSE" {
		t.Errorf("Name() = %q", OpDataResponse.Name())
	}

	op, err := OpcodeFromNumber(2)
	if err != nil || op != OpDataResponse {
		t.Errorf("OpcodeFromNumber(2) = %v, %v", op, err)
	}
	if _, err := OpcodeFromNumber(10); err == nil {
		t.Error("OpcodeFromNumber(10) should fail")
	}
}
