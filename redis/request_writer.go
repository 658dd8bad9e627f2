package redis

import (
	"strconv"
	"strings"
)

// AppendRequest appends request to byte slice as RESP request (ie as array of strings).
//
// It could fail if some request value is not nil, integer, float, string or byte slice.
// In case of error it still returns modified buffer, but truncated to original size, it could be used
// save reallocation.
//
// Note: command could contain single space. In that case, it will be split and last part will be prepended to arguments.
func AppendRequest(buf []byte, req Request) ([]byte, error) {
	oldSize := len(buf)
	space := strings.IndexByte(req.Cmd, ' ')
	if space != -1 {
		buf = appendHead(buf, '*', int64(len(req.Args)+2))
		buf = appendHead(buf, '$', int64(space))
		buf = append(buf, req.Cmd[:space]...)
		buf = append(buf, '\r', '\n')
		buf = appendHead(buf, '$', int64(len(req.Cmd)-space-1))
		buf = append(buf, req.Cmd[space+1:]...)
		buf = append(buf, '\r', '\n')
	} else {
		buf = appendHead(buf, '*', int64(len(req.Args)+1))
		buf = appendHead(buf, '$', int64(len(req.Cmd)))
		buf = append(buf, req.Cmd...)
		buf = append(buf, '\r', '\n')
	}
	for i, val := range req.Args {
		switch v := val.(type) {
		case string:
			buf = appendHead(buf, '$', int64(len(v)))
			buf = append(buf, v...)
		case []byte:
			buf = appendHead(buf, '$', int64(len(v)))
			buf = append(buf, v...)
		case int:
			buf = appendBulkInt(buf, int64(v))
		case uint:
			buf = appendBulkUint(buf, uint64(v))
		case int64:
			buf = appendBulkInt(buf, v)
		case uint64:
			buf = appendBulkUint(buf, v)
		case int32:
			buf = appendBulkInt(buf, int64(v))
		case uint32:
			buf = appendBulkInt(buf, int64(v))
		case int8:
			buf = appendBulkInt(buf, int64(v))
		case uint8:
			buf = appendBulkInt(buf, int64(v))
		case int16:
			buf = appendBulkInt(buf, int64(v))
		case uint16:
			buf = appendBulkInt(buf, int64(v))
		case bool:
			if v {
				buf = append(buf, "$1\r\n1"...)
			} else {
				buf = append(buf, "$1\r\n0"...)
			}
		case float32:
			str := strconv.FormatFloat(float64(v), 'f', -1, 32)
			buf = appendHead(buf, '$', int64(len(str)))
			buf = append(buf, str...)
		case float64:
			str := strconv.FormatFloat(v, 'f', -1, 64)
			buf = appendHead(buf, '$', int64(len(str)))
			buf = append(buf, str...)
		case nil:
			buf = append(buf, "$0\r\n"...)
		default:
			return buf[:oldSize], ErrArgumentType.NewWithNoMessage().
				WithProperty(EKVal, val).
				WithProperty(EKArgPos, i).
				WithProperty(EKRequest, req)
		}
		buf = append(buf, '\r', '\n')
	}
	return buf, nil
}

func appendInt(b []byte, i int64) []byte {
	if i < 0 {
		b = append(b, '-')
		return appendUint(b, uint64(-i))
	}
	return appendUint(b, uint64(i))
}

func appendUint(b []byte, u uint64) []byte {
	if u == 0 {
		return append(b, '0')
	}
	digits := [20]byte{}
	p := 20
	for u > 0 {
		n := u / 10
		p--
		digits[p] = byte(u-n*10) + '0'
		u = n
	}
	return append(b, digits[p:]...)
}

func appendHead(b []byte, t byte, i int64) []byte {
	b = append(b, t)
	b = appendInt(b, i)
	return append(b, '\r', '\n')
}

func appendBulkInt(b []byte, i int64) []byte {
	var tmp [24]byte
	num := appendInt(tmp[:0], i)
	b = appendHead(b, '$', int64(len(num)))
	return append(b, num...)
}

func appendBulkUint(b []byte, u uint64) []byte {
	var tmp [24]byte
	num := appendUint(tmp[:0], u)
	b = appendHead(b, '$', int64(len(num)))
	return append(b, num...)
}

// ArgToString returns string representation of an argument.
// Used to determine key position and for logging.
func ArgToString(arg interface{}) (string, bool) {
	var bufarr [24]byte
	var buf []byte
	switch v := arg.(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	case int:
		buf = strconv.AppendInt(bufarr[:0], int64(v), 10)
	case uint:
		buf = strconv.AppendUint(bufarr[:0], uint64(v), 10)
	case int64:
		buf = strconv.AppendInt(bufarr[:0], v, 10)
	case uint64:
		buf = strconv.AppendUint(bufarr[:0], v, 10)
	case int32:
		buf = strconv.AppendInt(bufarr[:0], int64(v), 10)
	case uint32:
		buf = strconv.AppendUint(bufarr[:0], uint64(v), 10)
	case int16:
		buf = strconv.AppendInt(bufarr[:0], int64(v), 10)
	case uint16:
		buf = strconv.AppendUint(bufarr[:0], uint64(v), 10)
	case int8:
		buf = strconv.AppendInt(bufarr[:0], int64(v), 10)
	case uint8:
		buf = strconv.AppendUint(bufarr[:0], uint64(v), 10)
	case bool:
		if v {
			return "1", true
		}
		return "0", true
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case nil:
		return "", true
	default:
		return "", false
	}
	return string(buf), true
}
