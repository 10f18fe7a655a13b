package boardimg

import (
	"bytes"
	"fmt"
	"image"
	"strings"
	"sync"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// Piece outlines on a 45x45 canvas. {F} is the body colour and {S} the outline.
var pieceShapes = map[byte]string{
	'p': `<circle cx="22.5" cy="13" r="5" fill="{F}" stroke="{S}" stroke-width="1.5"/>
<path d="M17 36 L19 22 Q22.5 18 26 22 L28 36 Z" fill="{F}" stroke="{S}" stroke-width="1.5"/>
<rect x="12" y="35" width="21" height="5" rx="1.5" fill="{F}" stroke="{S}" stroke-width="1.5"/>`,
	'r': `<path d="M11 14 L11 9 L15 9 L15 11 L19 11 L19 9 L26 9 L26 11 L30 11 L30 9 L34 9 L34 14 Z" fill="{F}" stroke="{S}" stroke-width="1.5"/>
<rect x="14" y="14" width="17" height="17" fill="{F}" stroke="{S}" stroke-width="1.5"/>
<rect x="11" y="31" width="23" height="4" fill="{F}" stroke="{S}" stroke-width="1.5"/>
<rect x="9" y="35" width="27" height="5" rx="1.5" fill="{F}" stroke="{S}" stroke-width="1.5"/>`,
	'n': `<path d="M14 37 L31 37 L31 30 Q33 18 24 10 L22 7 L20 11 Q14 14 11 22 L12 26 L16 25 L20 21 Q19 27 14 31 Z" fill="{F}" stroke="{S}" stroke-width="1.5"/>
<circle cx="19" cy="16" r="1.4" fill="{S}"/>
<rect x="11" y="36" width="23" height="4" rx="1.5" fill="{F}" stroke="{S}" stroke-width="1.5"/>`,
	'b': `<circle cx="22.5" cy="8" r="2.5" fill="{F}" stroke="{S}" stroke-width="1.5"/>
<path d="M22.5 11 Q14 18 16 27 L29 27 Q31 18 22.5 11 Z" fill="{F}" stroke="{S}" stroke-width="1.5"/>
<rect x="15" y="27" width="15" height="4" fill="{F}" stroke="{S}" stroke-width="1.5"/>
<path d="M10 38 Q22.5 32 35 38 L35 40 L10 40 Z" fill="{F}" stroke="{S}" stroke-width="1.5"/>`,
	'q': `<path d="M9 14 L14 30 L31 30 L36 14 L29 24 L27 11 L22.5 23 L18 11 L16 24 Z" fill="{F}" stroke="{S}" stroke-width="1.5"/>
<circle cx="9" cy="13" r="2" fill="{F}" stroke="{S}" stroke-width="1.2"/>
<circle cx="18" cy="10" r="2" fill="{F}" stroke="{S}" stroke-width="1.2"/>
<circle cx="27" cy="10" r="2" fill="{F}" stroke="{S}" stroke-width="1.2"/>
<circle cx="36" cy="13" r="2" fill="{F}" stroke="{S}" stroke-width="1.2"/>
<rect x="13" y="30" width="19" height="4" fill="{F}" stroke="{S}" stroke-width="1.5"/>
<rect x="10" y="34" width="25" height="6" rx="1.5" fill="{F}" stroke="{S}" stroke-width="1.5"/>`,
	'k': `<path d="M21 4 L24 4 L24 7 L27 7 L27 10 L24 10 L24 13 L21 13 L21 10 L18 10 L18 7 L21 7 Z" fill="{F}" stroke="{S}" stroke-width="1.2"/>
<path d="M10 22 Q10 14 22.5 16 Q35 14 35 22 L31 32 L14 32 Z" fill="{F}" stroke="{S}" stroke-width="1.5"/>
<rect x="12" y="32" width="21" height="3" fill="{F}" stroke="{S}" stroke-width="1.5"/>
<rect x="10" y="35" width="25" height="5" rx="1.5" fill="{F}" stroke="{S}" stroke-width="1.5"/>`,
}

type spriteKey struct {
	piece byte
	size  int
}

// sprites caches rasterized pieces; values are *image.RGBA.
var sprites sync.Map

// pieceSVG returns the SVG document for a FEN piece letter.
func pieceSVG(piece byte) ([]byte, error) {
	shape, ok := pieceShapes[lower(piece)]
	if !ok {
		return nil, fmt.Errorf("unknown piece %q", piece)
	}
	fill, stroke := "#f8f8f8", "#1b1b1b"
	if piece >= 'a' && piece <= 'z' {
		fill, stroke = "#2a2a2a", "#0a0a0a"
	}
	body := strings.NewReplacer("{F}", fill, "{S}", stroke).Replace(shape)
	return []byte(`<svg xmlns="http://www.w3.org/2000/svg" width="45" height="45" viewBox="0 0 45 45">` + body + `</svg>`), nil
}

// renderPieceImage rasterizes a piece into a size x size transparent sprite.
func renderPieceImage(piece byte, size int) (image.Image, error) {
	key := spriteKey{piece: piece, size: size}
	if img, ok := sprites.Load(key); ok {
		return img.(*image.RGBA), nil
	}

	doc, err := pieceSVG(piece)
	if err != nil {
		return nil, err
	}
	icon, err := oksvg.ReadIconStream(bytes.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("piece %q: %w", piece, err)
	}
	icon.SetTarget(0, 0, float64(size), float64(size))

	sprite := image.NewRGBA(image.Rect(0, 0, size, size))
	bounds := sprite.Bounds()
	icon.Draw(rasterx.NewDasher(size, size, rasterx.NewScannerGV(size, size, sprite, bounds)), 1)

	actual, _ := sprites.LoadOrStore(key, sprite)
	return actual.(*image.RGBA), nil
}

func lower(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + ('a' - 'A')
	}
	return b
}
