// SPDX-FileCopyrightText: 2026 Mara Vogel
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"bytes"
	"io"
	"testing"

	"github.com/ulikunitz/xz"

	"github.com/wireflow/wireflow-go/pkg/wire"
)

func TestCaptureRoundTrip(t *testing.T) {
	payloads := [][]byte{
		[]byte("hello"),
		bytes.Repeat([]byte{0x23}, 4000),
		[]byte(""),
	}

	captureBuf := new(bytes.Buffer)
	xzWriter, err := xz.NewWriter(captureBuf)
	if err != nil {
		t.Fatal(err)
	}

	for _, payload := range payloads {
		frame, err := wire.Pack(wire.NewData(payload))
		if err != nil {
			t.Fatal(err)
		}
		if _, err := xzWriter.Write(frame); err != nil {
			t.Fatal(err)
		}
	}
	if err := xzWriter.Close(); err != nil {
		t.Fatal(err)
	}

	xzReader, err := xz.NewReader(bytes.NewReader(captureBuf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}

	var got [][]byte
	tokenizer := wire.NewTokenizer(func(frame []byte) error {
		msg, err := wire.Parse(frame)
		if err != nil {
			return err
		}

		data := msg.(*wire.Data)
		if err := data.Verify(); err != nil {
			return err
		}

		got = append(got, data.Payload)
		return nil
	})

	buf := make([]byte, 1024)
	for {
		n, readErr := xzReader.Read(buf)
		if n > 0 {
			if err := tokenizer.Receive(buf[:n]); err != nil {
				t.Fatal(err)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			t.Fatal(readErr)
		}
	}

	if len(got) != len(payloads) {
		t.Fatalf("decoded %d frames, expected %d", len(got), len(payloads))
	}
	for i := range payloads {
		if !bytes.Equal(got[i], payloads[i]) {
			t.Fatalf("payload %d differs: %q became %q", i, payloads[i], got[i])
		}
	}
}
