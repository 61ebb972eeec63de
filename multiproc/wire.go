package multiproc

import (
	"github.com/sunwalker/invoker/invokererr"
	"golang.org/x/sys/unix"
)

const (
	// MaxPacketSize is the largest SOCK_SEQPACKET datagram this wire
	// format uses, leading byte included (spec §6).
	MaxPacketSize = 16384
	// MaxFdsPerPacket is the most file descriptors SCM_RIGHTS carries in
	// a single packet (spec §6).
	MaxFdsPerPacket = 253
)

// writePacket sends one packet: a leading marker byte (0 = more to come,
// 1 = last packet of the message), the payload chunk, and fds as
// SCM_RIGHTS ancillary data (spec §4.2 "send protocol").
func writePacket(fd int, payload []byte, fds []int, last bool) error {
	marker := byte(0)
	if last {
		marker = 1
	}
	buf := make([]byte, 0, len(payload)+1)
	buf = append(buf, marker)
	buf = append(buf, payload...)

	var oob []byte
	if len(fds) > 0 {
		if len(fds) > MaxFdsPerPacket {
			return invokererr.New(invokererr.Channel, "resource-exhausted: %d fds exceeds the %d-per-packet limit", len(fds), MaxFdsPerPacket)
		}
		oob = unix.UnixRights(fds...)
	}

	n, err := unix.Sendmsg(fd, buf, oob, nil, 0)
	if err != nil {
		return invokererr.Wrap(invokererr.Channel, err, "sendmsg")
	}
	if n != len(buf) {
		return invokererr.New(invokererr.Channel, "short write: sent %d of %d bytes", n, len(buf))
	}
	return nil
}

// readPacket receives one packet. closed reports the peer having shut the
// connection down mid-message (zero payload, zero ancillary, no marker
// byte at all) as distinct from a legitimately empty terminal packet
// (spec §4.2 "receive protocol").
func readPacket(fd int) (payload []byte, fds []int, last bool, closed bool, err error) {
	buf := make([]byte, MaxPacketSize)
	oob := make([]byte, unix.CmsgSpace(MaxFdsPerPacket*4))

	n, oobn, _, _, rerr := unix.Recvmsg(fd, buf, oob, 0)
	if rerr != nil {
		return nil, nil, false, false, invokererr.Wrap(invokererr.Channel, rerr, "recvmsg")
	}
	if n == 0 && oobn == 0 {
		return nil, nil, false, true, nil
	}

	marker := buf[0]
	payload = append([]byte(nil), buf[1:n]...)
	last = marker == 1

	if oobn > 0 {
		scms, perr := unix.ParseSocketControlMessage(oob[:oobn])
		if perr != nil {
			return nil, nil, false, false, invokererr.Wrap(invokererr.Channel, perr, "parse ancillary data")
		}
		for _, scm := range scms {
			if scm.Header.Type != unix.SCM_RIGHTS {
				return nil, nil, false, false, invokererr.New(invokererr.Channel, "non-SCM_RIGHTS ancillary data")
			}
			rights, perr := unix.ParseUnixRights(&scm)
			if perr != nil {
				return nil, nil, false, false, invokererr.Wrap(invokererr.Channel, perr, "parse unix rights")
			}
			fds = append(fds, rights...)
		}
	}
	return payload, fds, last, false, nil
}

// sendMessage splits a serialized (payload, fds) pair into packets of at
// most MaxPacketSize-1 bytes and MaxFdsPerPacket fds, and sends them in
// order with the terminator marker on the last one (spec §4.2).
func sendMessage(fd int, payload []byte, fds []int) error {
	bufPos, fdsPos := 0, 0
	for {
		end := min(len(payload), bufPos+MaxPacketSize-1)
		fdEnd := min(len(fds), fdsPos+MaxFdsPerPacket)
		last := end == len(payload) && fdEnd == len(fds)

		if err := writePacket(fd, payload[bufPos:end], fds[fdsPos:fdEnd], last); err != nil {
			return err
		}
		bufPos, fdsPos = end, fdEnd
		if last {
			return nil
		}
	}
}

// recvMessage accumulates packets until the terminator, returning ok=false
// ("none") if the peer closed before sending any bytes/fds at all, or a
// channel error if it closed mid-message.
func recvMessage(fd int) (payload []byte, fds []int, ok bool, err error) {
	for {
		chunk, chunkFds, last, closed, rerr := readPacket(fd)
		if rerr != nil {
			return nil, nil, false, rerr
		}
		if closed {
			if len(payload) == 0 && len(fds) == 0 {
				return nil, nil, false, nil
			}
			return nil, nil, false, invokererr.New(invokererr.Channel, "unterminated-stream: connection closed mid-message")
		}
		payload = append(payload, chunk...)
		fds = append(fds, chunkFds...)
		if last {
			return payload, fds, true, nil
		}
	}
}
