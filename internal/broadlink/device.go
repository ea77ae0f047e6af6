// Package broadlink speaks the Broadlink LAN protocol to RM-series IR/RF
// blasters. Only the pieces needed to authenticate and replay stored codes
// are implemented; pairing and code learning are out of scope.
package broadlink

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"
)

// Every factory-fresh device encrypts with the same well-known key until
// Auth negotiates a session key.
var (
	initialKey = []byte{
		0x09, 0x76, 0x28, 0x34, 0x3f, 0xe9, 0x9e, 0x23,
		0x76, 0x5c, 0x15, 0x13, 0xac, 0xcf, 0x8b, 0x02,
	}
	initialIV = []byte{
		0x56, 0x2e, 0x17, 0x99, 0x6d, 0x09, 0x3d, 0x28,
		0xdd, 0xb3, 0xba, 0x69, 0x5a, 0x2e, 0x6f, 0x58,
	}
)

const (
	cmdAuth     = 0x65
	cmdSendData = 0x6a

	devicePort = 80

	// rm2DeviceType is accepted by every RM-series blaster for control
	// packets sent to an already-paired device.
	rm2DeviceType = 0x2712
)

// Device is one Broadlink blaster on the LAN. Safe for concurrent use; calls
// are serialized because the protocol is strictly request/response over a
// single packet counter.
type Device struct {
	host string
	mac  net.HardwareAddr

	mu    sync.Mutex
	key   []byte
	id    [4]byte
	count uint16

	timeout time.Duration
}

// NewDevice creates a handle for the blaster at host with the given MAC.
// Auth must succeed before SendCode is usable.
func NewDevice(host string, mac net.HardwareAddr, timeout time.Duration) *Device {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	key := make([]byte, len(initialKey))
	copy(key, initialKey)
	return &Device{
		host:    host,
		mac:     mac,
		key:     key,
		count:   uint16(time.Now().UnixNano() & 0xffff),
		timeout: timeout,
	}
}

// Auth performs the key exchange. The device answers with a session key and
// a device id that must accompany every later packet.
func (d *Device) Auth(ctx context.Context) error {
	payload := make([]byte, 0x50)
	for i := 0x04; i < 0x13; i++ {
		payload[i] = 0x31
	}
	payload[0x1e] = 0x01
	payload[0x2d] = 0x01
	copy(payload[0x30:], "Test  1")

	d.mu.Lock()
	defer d.mu.Unlock()

	resp, err := d.exchange(ctx, cmdAuth, payload)
	if err != nil {
		return fmt.Errorf("broadlink auth: %w", err)
	}
	if len(resp) < 0x14 {
		return fmt.Errorf("broadlink auth: short response (%d bytes)", len(resp))
	}

	copy(d.id[:], resp[0x00:0x04])
	d.key = make([]byte, 16)
	copy(d.key, resp[0x04:0x14])
	return nil
}

// SendCode transmits a raw IR/RF code blob, as captured by the vendor app or
// a learning pass elsewhere.
func (d *Device) SendCode(ctx context.Context, code []byte) error {
	if len(code) == 0 {
		return fmt.Errorf("broadlink send: empty code")
	}

	payload := make([]byte, 4+len(code))
	payload[0] = 0x02
	copy(payload[4:], code)

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := d.exchange(ctx, cmdSendData, payload); err != nil {
		return fmt.Errorf("broadlink send: %w", err)
	}
	return nil
}

// exchange frames, encrypts and sends one command packet, then waits for and
// decrypts the response. Caller holds d.mu.
func (d *Device) exchange(ctx context.Context, command byte, payload []byte) ([]byte, error) {
	d.count++
	packet, err := d.buildPacket(command, payload)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(d.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	conn, err := net.Dial("udp", net.JoinHostPort(d.host, fmt.Sprint(devicePort)))
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, err
	}

	if _, err := conn.Write(packet); err != nil {
		return nil, err
	}

	buf := make([]byte, 2048)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, err
	}
	resp := buf[:n]
	if n < 0x38 {
		return nil, fmt.Errorf("short response (%d bytes)", n)
	}

	if code := binary.LittleEndian.Uint16(resp[0x22:0x24]); code != 0 {
		return nil, fmt.Errorf("device error 0x%04x", code)
	}

	return d.decrypt(resp[0x38:])
}

// buildPacket wraps an encrypted payload in the 0x38-byte control header.
// Both the payload and the whole packet carry a 0xbeaf-seeded checksum.
func (d *Device) buildPacket(command byte, payload []byte) ([]byte, error) {
	header := make([]byte, 0x38)
	copy(header[0x00:], []byte{0x5a, 0xa5, 0xaa, 0x55, 0x5a, 0xa5, 0xaa, 0x55})
	binary.LittleEndian.PutUint16(header[0x24:], rm2DeviceType)
	header[0x26] = command
	binary.LittleEndian.PutUint16(header[0x28:], d.count)
	for i := 0; i < 6 && i < len(d.mac); i++ {
		header[0x2a+i] = d.mac[5-i]
	}
	copy(header[0x30:0x34], d.id[:])
	binary.LittleEndian.PutUint16(header[0x34:], checksum(payload))

	encrypted, err := d.encrypt(payload)
	if err != nil {
		return nil, err
	}

	packet := append(header, encrypted...)
	binary.LittleEndian.PutUint16(packet[0x20:], checksum(packet))
	return packet, nil
}

func (d *Device) encrypt(payload []byte) ([]byte, error) {
	block, err := aes.NewCipher(d.key)
	if err != nil {
		return nil, err
	}
	padded := pad(payload)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, initialIV).CryptBlocks(out, padded)
	return out, nil
}

func (d *Device) decrypt(data []byte) ([]byte, error) {
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("payload not block aligned (%d bytes)", len(data))
	}
	block, err := aes.NewCipher(d.key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, initialIV).CryptBlocks(out, data)
	return out, nil
}

// pad zero-fills the payload to the AES block size, the framing the firmware
// expects instead of PKCS padding.
func pad(payload []byte) []byte {
	rem := len(payload) % aes.BlockSize
	if rem == 0 {
		return payload
	}
	return append(bytes.Clone(payload), make([]byte, aes.BlockSize-rem)...)
}

// checksum is the protocol's additive checksum, seeded with 0xbeaf.
func checksum(data []byte) uint16 {
	sum := uint32(0xbeaf)
	for _, b := range data {
		sum += uint32(b)
	}
	return uint16(sum & 0xffff)
}
