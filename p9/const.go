// Package p9 implements the 9P2000.L wire protocol: fcall types, the
// binary codec, and a text debug formatter. It does no I/O of its own;
// see package client and package srv for the engines built on top of it.
package p9

// Message types. Requests are even, responses are odd (the request's
// type plus one), per 9P convention.
const (
	Tlerror       = 6
	Rlerror       = 7
	Tstatfs       = 8
	Rstatfs       = 9
	Tlopen        = 12
	Rlopen        = 13
	Tlcreate      = 14
	Rlcreate      = 15
	Tsymlink      = 16
	Rsymlink      = 17
	Tmknod        = 18
	Rmknod        = 19
	Trename       = 20
	Rrename       = 21
	Treadlink     = 22
	Rreadlink     = 23
	Tgetattr      = 24
	Rgetattr      = 25
	Tsetattr      = 26
	Rsetattr      = 27
	Txattrwalk    = 30
	Rxattrwalk    = 31
	Txattrcreate  = 32
	Rxattrcreate  = 33
	Treaddir      = 40
	Rreaddir      = 41
	Tfsync        = 50
	Rfsync        = 51
	Tlock         = 52
	Rlock         = 53
	Tgetlock      = 54
	Rgetlock      = 55
	Tlink         = 70
	Rlink         = 71
	Tmkdir        = 72
	Rmkdir        = 73
	Trenameat     = 74
	Rrenameat     = 75
	Tunlinkat     = 76
	Runlinkat     = 77
	Tversion      = 100
	Rversion      = 101
	Tauth         = 102
	Rauth         = 103
	Tattach       = 104
	Rattach       = 105
	Terror        = 106
	Rerror        = 107
	Tflush        = 108
	Rflush        = 109
	Twalk         = 110
	Rwalk         = 111
	Topen         = 112
	Ropen         = 113
	Tcreate       = 114
	Rcreate       = 115
	Tread         = 116
	Rread         = 117
	Twrite        = 118
	Rwrite        = 119
	Tclunk        = 120
	Rclunk        = 121
	Tremove       = 122
	Rremove       = 123
	Tstat         = 124
	Rstat         = 125
	Twstat        = 126
	Rwstat        = 127
)

// Protocol-wide sentinels and limits (spec.md §6, §4.1, §4.3, §4.4).
const (
	// NoTag is the tag reserved for TVERSION/RVERSION.
	NoTag uint16 = 0xFFFF
	// NoFid means "no afid" in TATTACH, or "not yet allocated".
	NoFid uint32 = 0xFFFFFFFF
	// MaxWElem is the maximum number of path elements a single TWALK
	// may carry; longer paths are chunked by the client.
	MaxWElem = 16
	// IOHDRSZ is the per-RPC header overhead reserved out of msize
	// for TREAD/TWRITE; usable payload is msize-IOHDRSZ.
	IOHDRSZ = 24
	// Version is the only version string this engine negotiates.
	Version = "9P2000.L"
	// MinMsize is the smallest usable negotiated frame size.
	MinMsize = IOHDRSZ
)

// Qid.Type bits (also reused as the top byte of Stat.Mode's
// DM-extension flags, shifted down by 24).
const (
	QTDIR     = 0x80
	QTAPPEND  = 0x40
	QTEXCL    = 0x20
	QTMOUNT   = 0x10
	QTAUTH    = 0x08
	QTTMP     = 0x04
	QTSYMLINK = 0x02
	QTLINK    = 0x01
	QTFILE    = 0x00
)

// Open/create mode bits (Lopen/Lcreate use raw Linux O_* flags on the
// wire; these are the legacy 9P open modes still accepted by the codec
// for the classic Topen/Tcreate forms).
const (
	OREAD  = 0x00
	OWRITE = 0x01
	ORDWR  = 0x02
	OEXEC  = 0x03
	OTRUNC = 0x10
	ORCLOSE = 0x40
)

// Permission / mode extension bits (spec.md §6).
const (
	DMDIR       = 0x80000000
	DMAPPEND    = 0x40000000
	DMEXCL      = 0x20000000
	DMAUTH      = 0x08000000
	DMTMP       = 0x04000000
	DMSYMLINK   = 0x02000000
	DMDEVICE    = 0x00800000
	DMNAMEDPIPE = 0x00200000
	DMSOCKET    = 0x00100000
)

// Common POSIX errno values used by ServerError. Not exhaustive; any
// int can be carried, these are just the ones named in the original
// implementation's error tables and the spec's scenarios.
const (
	EPERM       = 1
	ENOENT      = 2
	EIO         = 5
	EBADF       = 9
	EACCES      = 13
	EEXIST      = 17
	ENOTDIR     = 20
	EISDIR      = 21
	EINVAL      = 22
	ENOSYS      = 38
	EOPNOTSUPP  = 95
)
