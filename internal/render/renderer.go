package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	imagedraw "image/draw"
	"image/png"

	nchess "github.com/corentings/chess/v2"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// MoveHighlight marks the from/to squares of the last confirmed move.
type MoveHighlight struct {
	From nchess.Square
	To   nchess.Square
}

type RenderOptions struct {
	Highlight *MoveHighlight
}

type BoardRenderer interface {
	RenderPNG(ctx context.Context, board *nchess.Board, opts RenderOptions) ([]byte, error)
}

type svgBoardRenderer struct{}

func NewSVGBoardRenderer() BoardRenderer {
	return &svgBoardRenderer{}
}

var (
	lightSquare    = color.RGBA{233, 207, 163, 255}
	darkSquare     = color.RGBA{187, 136, 96, 255}
	highlightFill  = color.NRGBA{R: 255, G: 228, B: 120, A: 140}
	coordinateText = color.NRGBA{R: 40, G: 40, B: 40, A: 255}
	marginFill     = color.RGBA{244, 240, 232, 255}
)

func (r *svgBoardRenderer) RenderPNG(ctx context.Context, b *nchess.Board, opts RenderOptions) ([]byte, error) {
	if b == nil {
		return nil, fmt.Errorf("board is nil")
	}

	const (
		squareSize   = 72
		boardSquares = 8
		boardSize    = squareSize * boardSquares
		margin       = 28
	)

	totalWidth := boardSize + margin*2
	totalHeight := boardSize + margin*2
	origin := image.Point{X: margin, Y: margin}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	img := image.NewRGBA(image.Rect(0, 0, totalWidth, totalHeight))
	imagedraw.Draw(img, img.Bounds(), image.NewUniform(marginFill), image.Point{}, imagedraw.Src)

	drawSquares(img, squareSize, origin)
	drawHighlight(img, opts.Highlight, squareSize, origin)
	if err := drawPieces(img, b, squareSize, origin); err != nil {
		return nil, err
	}
	drawCoordinates(img, squareSize, origin, margin)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	var pngBuf bytes.Buffer
	if err := png.Encode(&pngBuf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return pngBuf.Bytes(), nil
}

var (
	boardRanks = []nchess.Rank{nchess.Rank8, nchess.Rank7, nchess.Rank6, nchess.Rank5, nchess.Rank4, nchess.Rank3, nchess.Rank2, nchess.Rank1}
	boardFiles = []nchess.File{nchess.FileA, nchess.FileB, nchess.FileC, nchess.FileD, nchess.FileE, nchess.FileF, nchess.FileG, nchess.FileH}
)

func drawSquares(dst imagedraw.Image, squareSize int, origin image.Point) {
	for row, rank := range boardRanks {
		for col, file := range boardFiles {
			x := origin.X + col*squareSize
			y := origin.Y + row*squareSize
			sq := nchess.NewSquare(file, rank)
			imagedraw.Draw(dst, image.Rect(x, y, x+squareSize, y+squareSize), image.NewUniform(squareColor(sq)), image.Point{}, imagedraw.Src)
		}
	}
}

func drawHighlight(img *image.RGBA, highlight *MoveHighlight, squareSize int, origin image.Point) {
	if img == nil || highlight == nil {
		return
	}
	for _, sq := range []nchess.Square{highlight.From, highlight.To} {
		rect := squareRect(sq, squareSize, origin)
		imagedraw.Draw(img, rect, image.NewUniform(highlightFill), image.Point{}, imagedraw.Over)
	}
}

func drawPieces(dst imagedraw.Image, b *nchess.Board, squareSize int, origin image.Point) error {
	boardMap := b.SquareMap()
	for row, rank := range boardRanks {
		for col, file := range boardFiles {
			sq := nchess.NewSquare(file, rank)
			piece := boardMap[sq]
			if piece == nchess.NoPiece {
				continue
			}
			img, err := renderPieceImage(piece, squareSize)
			if err != nil {
				return err
			}
			x := origin.X + col*squareSize
			y := origin.Y + row*squareSize
			imagedraw.Draw(dst, image.Rect(x, y, x+squareSize, y+squareSize), img, image.Point{}, imagedraw.Over)
		}
	}
	return nil
}

func drawCoordinates(dst imagedraw.Image, squareSize int, origin image.Point, margin int) {
	face := basicfont.Face7x13
	drawer := &font.Drawer{
		Dst:  dst,
		Face: face,
		Src:  image.NewUniform(coordinateText),
	}

	ascent := face.Metrics().Ascent.Ceil()
	boardEndY := origin.Y + len(boardRanks)*squareSize

	for row, rank := range boardRanks {
		rankCenter := origin.Y + row*squareSize + squareSize/2
		drawCenteredText(drawer, rank.String(), origin.X-margin/2, rankCenter+ascent/2)
	}
	for col, file := range boardFiles {
		fileCenter := origin.X + col*squareSize + squareSize/2
		drawCenteredText(drawer, file.String(), fileCenter, boardEndY+margin/2+ascent/2)
	}
}

func drawCenteredText(drawer *font.Drawer, text string, centerX, baseline int) {
	if text == "" {
		return
	}
	width := drawer.MeasureString(text).Round()
	drawer.Dot = fixed.P(centerX-width/2, baseline)
	drawer.DrawString(text)
}

func squareRect(sq nchess.Square, squareSize int, origin image.Point) image.Rectangle {
	col := int(sq.File() - nchess.FileA)
	row := 7 - int(sq.Rank()-nchess.Rank1)
	x := origin.X + col*squareSize
	y := origin.Y + row*squareSize
	return image.Rect(x, y, x+squareSize, y+squareSize)
}

func squareColor(sq nchess.Square) color.Color {
	if (int(sq.File())+int(sq.Rank()))%2 == 0 {
		return darkSquare
	}
	return lightSquare
}
