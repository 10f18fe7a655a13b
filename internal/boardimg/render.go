// Package boardimg draws a FEN position as a PNG board snapshot.
package boardimg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var ErrInvalidFEN = errors.New("invalid FEN placement")

const (
	squareSize  = 64
	sideMargin  = 28
	topMargin   = 44
	bottomSpace = 28
	boardSize   = squareSize * 8
)

var (
	lightSquare     = color.RGBA{233, 207, 163, 255}
	darkSquare      = color.RGBA{187, 136, 96, 255}
	background      = color.RGBA{38, 36, 33, 255}
	highlightColor  = color.NRGBA{R: 246, G: 235, B: 114, A: 140}
	coordinateColor = color.RGBA{210, 204, 196, 255}
	captionColor    = color.RGBA{245, 242, 236, 255}
)

// Highlight marks the squares of the last move, e.g. "e2" and "e4".
type Highlight struct {
	From string
	To   string
}

type Options struct {
	// Flip draws the board from Black's side.
	Flip      bool
	Highlight *Highlight
	Caption   string
}

// Board is the piece placement indexed [rank][file] with rank 0 = rank 1. Empty squares are 0.
type Board [8][8]byte

// ParsePlacement reads the first field of a FEN string.
func ParsePlacement(fen string) (Board, error) {
	var b Board
	fields := strings.Fields(fen)
	if len(fields) == 0 {
		return b, ErrInvalidFEN
	}
	rows := strings.Split(fields[0], "/")
	if len(rows) != 8 {
		return b, ErrInvalidFEN
	}
	for i, row := range rows {
		rank := 7 - i
		file := 0
		for j := 0; j < len(row); j++ {
			c := row[j]
			switch {
			case c >= '1' && c <= '8':
				file += int(c - '0')
			case strings.IndexByte("prnbqkPRNBQK", c) >= 0:
				if file > 7 {
					return b, ErrInvalidFEN
				}
				b[rank][file] = c
				file++
			default:
				return b, ErrInvalidFEN
			}
		}
		if file != 8 {
			return b, ErrInvalidFEN
		}
	}
	return b, nil
}

// RenderPNG draws the position in fen and returns PNG bytes.
func RenderPNG(ctx context.Context, fen string, opts Options) ([]byte, error) {
	board, err := ParsePlacement(fen)
	if err != nil {
		return nil, err
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	img := image.NewRGBA(image.Rect(0, 0, boardSize+sideMargin*2, boardSize+topMargin+bottomSpace))
	draw.Draw(img, img.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)
	origin := image.Point{X: sideMargin, Y: topMargin}

	drawSquares(img, origin)
	drawHighlight(img, opts, origin)
	if err := drawPieces(img, board, opts.Flip, origin); err != nil {
		return nil, err
	}
	drawCoordinates(img, opts.Flip, origin)
	drawCaption(img, opts.Caption)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func drawSquares(dst draw.Image, origin image.Point) {
	for row := 0; row < 8; row++ {
		for col := 0; col < 8; col++ {
			clr := lightSquare
			if (row+col)%2 == 1 {
				clr = darkSquare
			}
			r := image.Rect(0, 0, squareSize, squareSize).Add(origin.Add(image.Pt(col*squareSize, row*squareSize)))
			draw.Draw(dst, r, image.NewUniform(clr), image.Point{}, draw.Src)
		}
	}
}

func drawHighlight(dst draw.Image, opts Options, origin image.Point) {
	if opts.Highlight == nil {
		return
	}
	for _, name := range []string{opts.Highlight.From, opts.Highlight.To} {
		file, rank, ok := parseSquare(name)
		if !ok {
			continue
		}
		r := squareRect(file, rank, opts.Flip, origin)
		draw.Draw(dst, r, image.NewUniform(highlightColor), image.Point{}, draw.Over)
	}
}

func drawPieces(dst draw.Image, b Board, flip bool, origin image.Point) error {
	for rank := 0; rank < 8; rank++ {
		for file := 0; file < 8; file++ {
			p := b[rank][file]
			if p == 0 {
				continue
			}
			img, err := renderPieceImage(p, squareSize)
			if err != nil {
				return err
			}
			draw.Draw(dst, squareRect(file, rank, flip, origin), img, image.Point{}, draw.Over)
		}
	}
	return nil
}

func drawCoordinates(dst draw.Image, flip bool, origin image.Point) {
	face := basicfont.Face7x13
	drawer := &font.Drawer{Dst: dst, Src: image.NewUniform(coordinateColor), Face: face}
	ascent := face.Metrics().Ascent.Ceil()
	for i := 0; i < 8; i++ {
		file, rank := i, 7-i
		if flip {
			file, rank = 7-i, i
		}
		center := origin.Y + i*squareSize + squareSize/2
		drawCenteredText(drawer, string(rune('1'+rank)), origin.X-sideMargin/2, center+ascent/2)
		x := origin.X + i*squareSize + squareSize/2
		drawCenteredText(drawer, string(rune('a'+file)), x, origin.Y+boardSize+ascent+6)
	}
}

func drawCaption(dst draw.Image, caption string) {
	caption = strings.TrimSpace(caption)
	if caption == "" {
		return
	}
	drawer := &font.Drawer{Dst: dst, Src: image.NewUniform(captionColor), Face: basicfont.Face7x13}
	drawCenteredText(drawer, caption, dst.Bounds().Dx()/2, topMargin/2+5)
}

func drawCenteredText(drawer *font.Drawer, text string, centerX, baseline int) {
	width := drawer.MeasureString(text).Round()
	drawer.Dot = fixed.P(centerX-width/2, baseline)
	drawer.DrawString(text)
}

func squareRect(file, rank int, flip bool, origin image.Point) image.Rectangle {
	col, row := file, 7-rank
	if flip {
		col, row = 7-file, rank
	}
	x := origin.X + col*squareSize
	y := origin.Y + row*squareSize
	return image.Rect(x, y, x+squareSize, y+squareSize)
}

func parseSquare(s string) (file, rank int, ok bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 2 || s[0] < 'a' || s[0] > 'h' || s[1] < '1' || s[1] > '8' {
		return 0, 0, false
	}
	return int(s[0] - 'a'), int(s[1] - '1'), true
}
