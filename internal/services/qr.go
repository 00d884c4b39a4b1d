package services

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/draw"
	"image/png"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
)

// QRCodeSize es el lado en píxeles del PNG generado
const QRCodeSize = 256

// encodeQRPNG genera un PNG cuadrado con nivel de corrección M
func encodeQRPNG(content string) ([]byte, error) {
	code, err := qr.Encode(content, qr.M, qr.Auto)
	if err != nil {
		return nil, fmt.Errorf("error encoding QR code: %w", err)
	}

	code, err = barcode.Scale(code, QRCodeSize, QRCodeSize)
	if err != nil {
		return nil, fmt.Errorf("error scaling QR code: %w", err)
	}

	// Scale produce Gray16; gofpdf solo acepta PNG de 8 bits
	gray := image.NewGray(code.Bounds())
	draw.Draw(gray, gray.Bounds(), code, code.Bounds().Min, draw.Src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, gray); err != nil {
		return nil, fmt.Errorf("error writing QR PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// pngDataURI convierte un PNG en data URI para incrustarlo en HTML o JSON
func pngDataURI(data []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)
}
