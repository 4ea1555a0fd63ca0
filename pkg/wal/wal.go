package wal

import (
	"bufio"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"

	jsoniter "github.com/json-iterator/go"
)

// FileModeOwnerWrite rw-r--r-- (擁有者讀寫，其他人唯讀)
const FileModeOwnerWrite fs.FileMode = 0644

// maxRecordSize 單筆紀錄上限
const maxRecordSize = 1 << 20

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// WAL 是以 JSON Lines 格式追加寫入的 Write-Ahead Log。
// 每次 Append/AppendBatch 結束前 fsync，回傳 nil 即代表已落盤。
type WAL struct {
	mu   sync.Mutex
	file *os.File
	w    *bufio.Writer
}

// Open 開啟或建立一個 WAL 檔案
// O_APPEND 每次寫入時自動跳到文件末尾
// O_CREATE 如果文件不存在則建立
func Open(path string) (*WAL, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, FileModeOwnerWrite)
	if err != nil {
		return nil, err
	}
	return &WAL{
		file: file,
		w:    bufio.NewWriter(file),
	}, nil
}

// Append 寫入一筆紀錄並刷入硬碟
func (l *WAL) Append(v any) error {
	return l.AppendBatch(v)
}

// AppendBatch 寫入多筆紀錄，整批只 Flush 與 fsync 一次。
// 任何一筆序列化失敗時整批都不寫入。
func (l *WAL) AppendBatch(records ...any) error {
	if len(records) == 0 {
		return nil
	}
	lines := make([][]byte, 0, len(records))
	for _, v := range records {
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		lines = append(lines, raw)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, raw := range lines {
		if _, err := l.w.Write(raw); err != nil {
			return err
		}
		if err := l.w.WriteByte('\n'); err != nil {
			return err
		}
	}
	if err := l.w.Flush(); err != nil {
		return err
	}
	return l.file.Sync()
}

// Replay 從頭讀取所有紀錄，依序交給 callback
// callback 回傳錯誤時中止
func (l *WAL) Replay(callback func(raw []byte) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	// 確保從頭讀取
	if _, err := l.file.Seek(0, io.SeekStart); err != nil {
		return err
	}

	scanner := bufio.NewScanner(l.file)
	scanner.Buffer(make([]byte, 0, 4096), maxRecordSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if !json.Valid(line) {
			return fmt.Errorf("wal: corrupt record %q", line)
		}
		if err := callback(line); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// Close 關閉檔案
func (l *WAL) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.w.Flush(); err != nil {
		return err
	}
	return l.file.Close()
}
