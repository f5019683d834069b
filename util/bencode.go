package util

import (
	"bytes"
	"encoding/hex"
	"slices"
	"strconv"
	"time"

	tt "artiswarm/tracker/types"
)

func bencodeWriteInt64[T ~int64 | ~int](buf *bytes.Buffer, v T) {
	// Static allocation, length of max int64
	var lenBuf [20]byte

	buf.Write(strconv.AppendInt(lenBuf[:0], int64(v), 10))
}

func bencodeWriteString[T ~string | ~[]byte](buf *bytes.Buffer, v T) {
	bencodeWriteInt64(buf, len(v))
	buf.WriteByte(':')
	buf.Write([]byte(v))
}

func bencodeWriteNumber[T ~int64 | ~int](buf *bytes.Buffer, v T) {
	buf.WriteByte('i')
	bencodeWriteInt64(buf, v)
	buf.WriteByte('e')
}

func BencodeFailure(buf *bytes.Buffer, err string, interval time.Duration) {
	if interval < 0 {
		panic("bencode: negative interval")
	}

	buf.WriteByte('d')

	bencodeWriteString(buf, "failure reason")
	bencodeWriteString(buf, err)

	if interval > 0 {
		bencodeWriteString(buf, "interval")
		bencodeWriteNumber(buf, interval/time.Second)
	}

	buf.WriteByte('e')
}

func BencodeSortTorrentHashKeys(keys []tt.TorrentHash) {
	slices.SortFunc(keys, func(a, b tt.TorrentHash) int {
		return slices.Compare(a[:], b[:])
	})
}

// BencodeScrapeHeader Writes the scrape header.
// Call BencodeScrapeTorrent afterwards in key order, then finish with BencodeScrapeFooter
func BencodeScrapeHeader(buf *bytes.Buffer) {
	buf.WriteByte('d')

	bencodeWriteString(buf, "files")

	buf.WriteByte('d')
}

func BencodeScrapeTorrent(buf *bytes.Buffer, infoHash tt.TorrentHash, stats tt.SwarmStats) {
	var hashBuf [tt.TorrentHashSize * 2]byte

	hex.Encode(hashBuf[:], infoHash[:])
	bencodeWriteString(buf, hashBuf[:])

	buf.WriteByte('d')

	bencodeWriteString(buf, "complete")
	bencodeWriteNumber(buf, stats.Seeders)

	bencodeWriteString(buf, "downloaded")
	bencodeWriteNumber(buf, stats.Completed)

	bencodeWriteString(buf, "incomplete")
	bencodeWriteNumber(buf, stats.Leechers)

	buf.WriteByte('e')
}

func BencodeScrapeFooter(buf *bytes.Buffer, scrapeInterval time.Duration) {
	buf.WriteByte('e')

	bencodeWriteString(buf, "flags")

	buf.WriteByte('d')

	bencodeWriteString(buf, "min_request_interval")
	bencodeWriteNumber(buf, scrapeInterval/time.Second)

	buf.WriteByte('e')

	buf.WriteByte('e')
}

// BencodeAnnounceHeader Writes the announce header.
// Call BencodeAnnouncePeersIP4 afterwards, then finish with BencodeAnnounceFooter
func BencodeAnnounceHeader(buf *bytes.Buffer, stats tt.SwarmStats, interval, minInterval time.Duration) {
	buf.WriteByte('d')

	bencodeWriteString(buf, "complete")
	bencodeWriteNumber(buf, stats.Seeders)

	bencodeWriteString(buf, "downloaded")
	bencodeWriteNumber(buf, stats.Completed)

	bencodeWriteString(buf, "incomplete")
	bencodeWriteNumber(buf, stats.Leechers)

	bencodeWriteString(buf, "interval")
	bencodeWriteNumber(buf, interval/time.Second)

	bencodeWriteString(buf, "min interval")
	bencodeWriteNumber(buf, minInterval/time.Second)
}

func BencodeAnnouncePeersIP4(buf *bytes.Buffer, peers []tt.Peer, compact, peerID bool) {
	bencodeWriteString(buf, "peers")

	if compact {
		bencodeWriteInt64(buf, len(peers)*tt.PeerAddressSize)
		buf.WriteByte(':')

		for i := range peers {
			buf.Write(peers[i].Addr[:])
		}
	} else {
		buf.WriteByte('l')

		for i := range peers {
			peer := &peers[i]

			buf.WriteByte('d')

			bencodeWriteString(buf, "ip")
			{
				bencodeWriteInt64(buf, peer.Addr.IPStringLen())
				buf.WriteByte(':')
				peer.Addr.AppendIPString(buf)
			}

			if peerID {
				bencodeWriteString(buf, "peer id")
				bencodeWriteString(buf, peer.ID[:])
			}

			bencodeWriteString(buf, "port")
			bencodeWriteNumber(buf, int64(peer.Addr.Port()))

			buf.WriteByte('e')
		}

		buf.WriteByte('e')
	}
}

func BencodeAnnounceFooter(buf *bytes.Buffer) {
	buf.WriteByte('e')
}
