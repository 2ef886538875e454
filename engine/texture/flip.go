package texture

// flipVertical swaps rows top to bottom in place. scratch must hold one row.
func flipVertical(pix []byte, stride, height int, scratch []byte) {
	row := scratch[:stride]
	for top, bottom := 0, height-1; top < bottom; top, bottom = top+1, bottom-1 {
		t := pix[top*stride : (top+1)*stride]
		b := pix[bottom*stride : (bottom+1)*stride]
		copy(row, t)
		copy(t, b)
		copy(b, row)
	}
}
