package sse

import (
	"bufio"
	"io"
	"strings"
)

const maxFrameLine = 4 * 1024 * 1024

// Frame 从上游读取的一帧 SSE 消息
type Frame struct {
	ID    string
	Event string
	Data  string
}

// Reader 解析 text/event-stream 响应体
type Reader struct {
	scanner *bufio.Scanner
}

// NewReader 创建 Reader
func NewReader(r io.Reader) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameLine)
	return &Reader{scanner: scanner}
}

// Next 返回下一帧; 流结束时返回 io.EOF
//
// 多行 data 以 "\n" 拼接, 注释行(":" 开头)和未知字段被忽略,
// 没有 data 的帧(如仅有 event 行)会被跳过。
func (r *Reader) Next() (*Frame, error) {
	var (
		frame   Frame
		data    []string
		hasData bool
	)

	for r.scanner.Scan() {
		line := r.scanner.Text()

		if line == "" {
			if hasData {
				frame.Data = strings.Join(data, "\n")
				return &frame, nil
			}
			frame = Frame{}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "event":
			frame.Event = value
		case "data":
			data = append(data, value)
			hasData = true
		case "id":
			frame.ID = value
		}
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	// 末尾没有空行的最后一帧
	if hasData {
		frame.Data = strings.Join(data, "\n")
		return &frame, nil
	}
	return nil, io.EOF
}
