package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
)

// stateDigest hashes the full simulation state in a fixed order: calendar,
// farms by id, stewards by id. Two worlds fed the same intake produce the
// same digest at every day boundary; steadingctl verify depends on this.
func (w *World) stateDigest() string {
	h := sha256.New()
	var tmp [8]byte

	digestWriteU64(h, &tmp, uint64(w.clock.Day()))
	digestWriteU64(h, &tmp, uint64(w.clock.Week()))

	farms := w.farms.All()
	digestWriteU64(h, &tmp, uint64(len(farms)))
	for _, rec := range farms {
		digestWriteString(h, rec.ID)
		digestWriteString(h, rec.Steward)
		h.Write([]byte{boolByte(rec.Active)})
		digestWriteI64(h, &tmp, int64(rec.Yield))
		digestWriteU64(h, &tmp, math.Float64bits(rec.Pos[0]))
		digestWriteU64(h, &tmp, math.Float64bits(rec.Pos[1]))
		digestWriteI64(h, &tmp, int64(rec.Cell[0]))
		digestWriteI64(h, &tmp, int64(rec.Cell[1]))
	}

	digestWriteU64(h, &tmp, uint64(len(w.stewardIDs)))
	for _, id := range w.stewardIDs {
		st := w.stewards[id]
		digestWriteString(h, id)
		digestWriteI64(h, &tmp, int64(st.Pop.Available()))
		digestWriteI64(h, &tmp, int64(st.Pop.Baseline()))
		digestWriteI64(h, &tmp, int64(st.spentThisWeek))
		week, ok := st.Svc.LastProcessedWeek()
		h.Write([]byte{boolByte(ok)})
		digestWriteI64(h, &tmp, int64(week))
	}

	return hex.EncodeToString(h.Sum(nil))
}

func digestWriteU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteI64(h hashWriter, tmp *[8]byte, v int64) {
	digestWriteU64(h, tmp, uint64(v))
}

func digestWriteString(h hashWriter, s string) {
	h.Write([]byte(s))
	h.Write([]byte{0})
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

type hashWriter interface {
	Write(p []byte) (n int, err error)
}
