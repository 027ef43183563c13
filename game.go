/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"math/rand/v2"
)

const (
	boardSize      = 5
	boardChars     = boardSize*boardSize - 1
	extraPoolChars = 18
	freeChar       = "⭐"
)

const (
	modeConsonants = "consonants"
	modeVowels     = "vowels"
	modeMixed      = "mixed"
)

var consonants = []string{
	"ก", "ข", "ค", "ฆ", "ง", "จ", "ฉ", "ช", "ซ", "ฌ", "ญ", "ฎ", "ฏ",
	"ฐ", "ฑ", "ฒ", "ณ", "ด", "ต", "ถ", "ท", "ธ", "น", "บ", "ป", "ผ", "ฝ", "พ",
	"ฟ", "ภ", "ม", "ย", "ร", "ล", "ว", "ศ", "ษ", "ส", "ห", "ฬ", "อ", "ฮ",
}

// Vowel forms use "-" as the placeholder for the consonant they attach to.
var vowels = []string{
	"-ะ", "-า", "-ิ", "-ี", "-ึ", "-ื", "-ุ", "-ู",
	"เ-", "เ-ะ", "แ-", "แ-ะ", "โ-", "โ-ะ",
	"เ-าะ", "-อ", "เ-อ", "เ-ีย", "เ-ือ", "-ัว",
	"ใ-", "ไ-", "-ำ", "เ-า",
}

type Cell struct {
	Char   string `json:"char"`
	Marked bool   `json:"marked"`
	Free   bool   `json:"free"`
}

type Board [boardSize][boardSize]Cell

// Coord is a (row, column) pair, encoded as a two element array on the wire.
type Coord [2]int

func (b *Board) inBounds(r, c int) bool {
	return r >= 0 && r < boardSize && c >= 0 && c < boardSize
}

func sourceChars(mode string) []string {
	switch mode {
	case modeConsonants:
		return consonants
	case modeVowels:
		return vowels
	default:
		all := make([]string, 0, len(consonants)+len(vowels))
		all = append(all, consonants...)
		return append(all, vowels...)
	}
}

func poolSize(mode string) int {
	return min(boardChars+extraPoolChars, len(sourceChars(mode)))
}

func shuffled(src []string) []string {
	out := make([]string, len(src))
	copy(out, src)
	rand.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}

// buildPool returns a shuffled, capped selection of the characters eligible
// for the given mode. Unknown modes draw from consonants and vowels together.
func buildPool(mode string) []string {
	return shuffled(sourceChars(mode))[:poolSize(mode)]
}

// generateBoard lays out boardChars distinct characters from pool row-major,
// leaving the center as the free cell.
func generateBoard(pool []string) (Board, error) {
	var b Board

	if len(pool) < boardChars {
		return b, errPoolTooSmall
	}

	picked := shuffled(pool)[:boardChars]

	i := 0
	for r := range boardSize {
		for c := range boardSize {
			if r == boardSize/2 && c == boardSize/2 {
				b[r][c] = Cell{Char: freeChar, Marked: true, Free: true}
				continue
			}
			b[r][c] = Cell{Char: picked[i]}
			i++
		}
	}

	return b, nil
}

// checkWin scans rows, then columns, then the main diagonal, then the
// anti-diagonal, and returns the first fully marked line.
func checkWin(b Board) ([]Coord, bool) {
	for r := range boardSize {
		line := make([]Coord, 0, boardSize)
		for c := range boardSize {
			line = append(line, Coord{r, c})
		}
		if allMarked(b, line) {
			return line, true
		}
	}

	for c := range boardSize {
		line := make([]Coord, 0, boardSize)
		for r := range boardSize {
			line = append(line, Coord{r, c})
		}
		if allMarked(b, line) {
			return line, true
		}
	}

	diag := make([]Coord, 0, boardSize)
	anti := make([]Coord, 0, boardSize)
	for i := range boardSize {
		diag = append(diag, Coord{i, i})
		anti = append(anti, Coord{i, boardSize - 1 - i})
	}
	if allMarked(b, diag) {
		return diag, true
	}
	if allMarked(b, anti) {
		return anti, true
	}

	return nil, false
}

func allMarked(b Board, line []Coord) bool {
	for _, p := range line {
		if !b[p[0]][p[1]].Marked {
			return false
		}
	}
	return true
}
