package boardimg

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"testing"
)

const startFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

func TestParsePlacement(t *testing.T) {
	b, err := ParsePlacement(startFEN)
	if err != nil {
		t.Fatalf("ParsePlacement: %v", err)
	}
	if b[0][4] != 'K' || b[7][3] != 'q' || b[3][3] != 0 || b[1][0] != 'P' {
		t.Fatalf("unexpected placement: %v", b)
	}
	for _, bad := range []string{"", "8/8/8", "rnbqkbnr/ppppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR", "xnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR"} {
		if _, err := ParsePlacement(bad); !errors.Is(err, ErrInvalidFEN) {
			t.Fatalf("%q: expected ErrInvalidFEN, got %v", bad, err)
		}
	}
}

func decode(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("png decode: %v", err)
	}
	return img
}

func TestRenderPNG_Dimensions(t *testing.T) {
	data, err := RenderPNG(context.Background(), startFEN, Options{Caption: "alice vs bob"})
	if err != nil {
		t.Fatalf("RenderPNG: %v", err)
	}
	img := decode(t, data)
	if img.Bounds().Dx() != boardSize+sideMargin*2 || img.Bounds().Dy() != boardSize+topMargin+bottomSpace {
		t.Fatalf("unexpected size %v", img.Bounds())
	}
}

func TestRenderPNG_HighlightFollowsOrientation(t *testing.T) {
	origin := image.Point{X: sideMargin, Y: topMargin}
	fen := "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq - 0 1"
	hl := &Highlight{From: "e2", To: "e4"}

	for _, flip := range []bool{false, true} {
		data, err := RenderPNG(context.Background(), fen, Options{Flip: flip, Highlight: hl})
		if err != nil {
			t.Fatalf("RenderPNG: %v", err)
		}
		img := decode(t, data)
		// e2 is empty after the move, so its corner pixel shows the blended highlight.
		r := squareRect(4, 1, flip, origin)
		got := color8(img.At(r.Min.X+2, r.Min.Y+2))
		plain := color8(img.At(squareRect(3, 2, flip, origin).Min.X+2, squareRect(3, 2, flip, origin).Min.Y+2))
		if got == plain {
			t.Fatalf("flip=%v: e2 not highlighted", flip)
		}
	}
}

func TestRenderPNG_ContextAndBadFEN(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := RenderPNG(ctx, startFEN, Options{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if _, err := RenderPNG(context.Background(), "nope", Options{}); !errors.Is(err, ErrInvalidFEN) {
		t.Fatalf("expected ErrInvalidFEN, got %v", err)
	}
}

func TestPieceImagesRender(t *testing.T) {
	for _, p := range []byte("prnbqkPRNBQK") {
		img, err := renderPieceImage(p, 32)
		if err != nil {
			t.Fatalf("%c: %v", p, err)
		}
		_, _, _, a := img.At(16, 27).RGBA()
		if a == 0 {
			t.Fatalf("%c: base of piece is transparent", p)
		}
	}
	if _, err := pieceSVG('x'); err == nil {
		t.Fatalf("expected error for unknown piece")
	}
}

type rgb struct{ r, g, b uint32 }

func color8(c interface{ RGBA() (r, g, b, a uint32) }) rgb {
	r, g, b, _ := c.RGBA()
	return rgb{r >> 8, g >> 8, b >> 8}
}
