package media

import "testing"

func TestAudioFrameRoundTrip(t *testing.T) {
	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	framed := EncodeAudioFrame(42, payload)

	df, err := DecodeFrame(framed)
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if df.Type != FrameTypeAudio {
		t.Fatalf("Type = 0x%02x, want audio", df.Type)
	}
	if df.Seq != 42 {
		t.Fatalf("Seq = %d, want 42", df.Seq)
	}
	if string(df.Payload) != string(payload) {
		t.Fatalf("Payload = %v, want %v", df.Payload, payload)
	}
}

func TestPingPongRoundTrip(t *testing.T) {
	ping := EncodePing(7)
	df, err := DecodeFrame(ping)
	if err != nil {
		t.Fatalf("DecodeFrame(ping): %v", err)
	}
	if df.Type != FrameTypePing || df.Seq != 7 || len(df.Payload) != 0 {
		t.Fatalf("decoded ping = %+v", df)
	}

	pong := EncodePong(df.Seq, 1000)
	df2, err := DecodeFrame(pong)
	if err != nil {
		t.Fatalf("DecodeFrame(pong): %v", err)
	}
	if df2.Type != FrameTypePong || df2.Seq != 7 || df2.SentMillis != 1000 {
		t.Fatalf("decoded pong = %+v", df2)
	}
}

func TestDecodeFrameRejectsEmpty(t *testing.T) {
	if _, err := DecodeFrame(nil); err == nil {
		t.Fatal("expected error for empty frame")
	}
}

func TestDecodeFrameRejectsShortAudio(t *testing.T) {
	if _, err := DecodeFrame([]byte{FrameTypeAudio, 0x00}); err == nil {
		t.Fatal("expected error for short audio frame")
	}
}

func TestDecodeFrameRejectsUnknownType(t *testing.T) {
	if _, err := DecodeFrame([]byte{0xFF, 0, 0, 0, 0}); err == nil {
		t.Fatal("expected error for unknown frame type")
	}
}
