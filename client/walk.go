package client

import (
	"strings"

	"github.com/sandia-minimega/mini9p/p9"
)

// Walk descends from fid along the "/"-delimited path, allocating and
// returning a new Fid. The path is split into chunks of at most
// MAXWELEM names (spec.md §4.1, §8 scenario 3); one TWALK is issued
// per chunk, chaining each chunk's newfid as the next chunk's source.
// If any chunk returns fewer qids than names requested, the walk fails
// with ENOENT and the partially-allocated fid is clunked before
// returning, exactly as libnpclient's npc_walk does.
func (fid *Fid) Walk(path string) (*Fid, error) {
	c := fid.conn
	path = strings.TrimPrefix(path, "/")

	var names []string
	if path != "" {
		names = strings.Split(path, "/")
	}

	newid, err := c.fids.alloc()
	if err != nil {
		return nil, err
	}
	newFid := &Fid{id: newid, conn: c}

	if len(names) == 0 {
		// Zero-name walk is a clone: source unchanged, newfid is a
		// fresh alias for the same object.
		req := &p9.Fcall{Type: p9.Twalk, Fid: fid.id, Newfid: newid}
		resp, err := c.rpc(req)
		if err != nil {
			c.fids.release(newid)
			return nil, err
		}
		newFid.qid = fid.qid
		_ = resp
		return newFid, nil
	}

	srcFid := fid.id
	var lastQid p9.Qid
	progressed := false

	for start := 0; start < len(names); start += p9.MaxWElem {
		end := start + p9.MaxWElem
		if end > len(names) {
			end = len(names)
		}
		chunk := names[start:end]

		req := &p9.Fcall{Type: p9.Twalk, Fid: srcFid, Newfid: newid, Wname: chunk}
		resp, err := c.rpc(req)
		if err != nil {
			if progressed {
				clunkFid(c, newid)
			} else {
				c.fids.release(newid)
			}
			return nil, err
		}

		if len(resp.Wqid) < len(chunk) {
			if progressed || len(resp.Wqid) > 0 {
				clunkFid(c, newid)
			} else {
				c.fids.release(newid)
			}
			return nil, &p9.ServerError{Errno: p9.ENOENT}
		}

		lastQid = resp.Wqid[len(resp.Wqid)-1]
		srcFid = newid
		progressed = true
	}

	newFid.qid = lastQid
	return newFid, nil
}

// clunkFid best-effort clunks a fid id that was allocated but whose
// owning Fid was never fully constructed (a partial walk failure).
func clunkFid(c *Connection, id uint32) {
	req := &p9.Fcall{Type: p9.Tclunk, Fid: id}
	c.rpc(req) //nolint:errcheck
	c.fids.release(id)
}
