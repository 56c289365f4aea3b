package nnue

import "github.com/hailam/chesscore/internal/board"

// Feature returns the HalfKP input index of a non-king piece seen from
// perspective, whose king stands on king. Black's view is mirrored
// vertically so both perspectives share one weight set. Kings have no
// feature and return -1.
func Feature(perspective board.Color, king board.Square, pt board.PieceType, c board.Color, sq board.Square) int {
	if pt >= board.King {
		return -1
	}
	if perspective == board.Black {
		king ^= 56
		sq ^= 56
	}
	kind := int(pt)
	if c != perspective {
		kind += 5
	}
	return (int(king)*NumPieceKinds+kind)*64 + int(sq)
}

// activeFeatures appends the features of every non-king piece of pos from
// perspective.
func activeFeatures(dst []int, pos *board.Position, perspective board.Color) []int {
	king := pos.KingSquare[perspective]
	for c := board.White; c <= board.Black; c++ {
		for pt := board.Pawn; pt < board.King; pt++ {
			for bb := pos.Pieces[c][pt]; bb != 0; {
				dst = append(dst, Feature(perspective, king, pt, c, bb.PopLSB()))
			}
		}
	}
	return dst
}
