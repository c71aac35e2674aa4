//go:build windows

package window

import (
	"fmt"
	"image"
	"path/filepath"
	"strings"
	"syscall"
	"unsafe"
)

var (
	user32   = syscall.NewLazyDLL("user32.dll")
	gdi32    = syscall.NewLazyDLL("gdi32.dll")
	kernel32 = syscall.NewLazyDLL("kernel32.dll")

	procEnumWindows              = user32.NewProc("EnumWindows")
	procIsWindow                 = user32.NewProc("IsWindow")
	procIsWindowVisible          = user32.NewProc("IsWindowVisible")
	procGetWindowTextW           = user32.NewProc("GetWindowTextW")
	procGetWindowRect            = user32.NewProc("GetWindowRect")
	procGetWindowThreadProcessId = user32.NewProc("GetWindowThreadProcessId")
	procPrintWindow              = user32.NewProc("PrintWindow")

	procCreateCompatibleDC = gdi32.NewProc("CreateCompatibleDC")
	procCreateDIBSection   = gdi32.NewProc("CreateDIBSection")
	procSelectObject       = gdi32.NewProc("SelectObject")
	procDeleteObject       = gdi32.NewProc("DeleteObject")
	procDeleteDC           = gdi32.NewProc("DeleteDC")

	procOpenProcess                = kernel32.NewProc("OpenProcess")
	procCloseHandle                = kernel32.NewProc("CloseHandle")
	procQueryFullProcessImageNameW = kernel32.NewProc("QueryFullProcessImageNameW")
)

const (
	printWindowRenderFullContent = 0x2
	processQueryLimitedInfo      = 0x1000
	biRGB                        = 0
)

type winRect struct {
	Left, Top, Right, Bottom int32
}

type bitmapInfoHeader struct {
	Size          uint32
	Width         int32
	Height        int32
	Planes        uint16
	BitCount      uint16
	Compression   uint32
	SizeImage     uint32
	XPelsPerMeter int32
	YPelsPerMeter int32
	ClrUsed       uint32
	ClrImportant  uint32
}

type bitmapInfo struct {
	Header bitmapInfoHeader
	Colors [3]uint32
}

func list() ([]Window, error) {
	var windows []Window

	cb := syscall.NewCallback(func(hwnd uintptr, _ uintptr) uintptr {
		title := windowText(hwnd)
		if title == "" {
			return 1 // continue enumeration
		}

		var rect winRect
		_, _, _ = procGetWindowRect.Call(hwnd, uintptr(unsafe.Pointer(&rect)))
		visible, _, _ := procIsWindowVisible.Call(hwnd)

		windows = append(windows, Window{
			ID:     uint64(hwnd),
			App:    processImageName(hwnd),
			Title:  title,
			Width:  int(rect.Right - rect.Left),
			Height: int(rect.Bottom - rect.Top),
			Hidden: visible == 0,
		})
		return 1
	})

	ret, _, err := procEnumWindows.Call(cb, 0)
	if ret == 0 {
		return nil, fmt.Errorf("EnumWindows: %w", err)
	}
	return windows, nil
}

func windowText(hwnd uintptr) string {
	buf := make([]uint16, 512)
	n, _, _ := procGetWindowTextW.Call(hwnd, uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	if n == 0 {
		return ""
	}
	return syscall.UTF16ToString(buf[:n])
}

func processImageName(hwnd uintptr) string {
	var pid uint32
	_, _, _ = procGetWindowThreadProcessId.Call(hwnd, uintptr(unsafe.Pointer(&pid)))
	if pid == 0 {
		return ""
	}

	handle, _, _ := procOpenProcess.Call(processQueryLimitedInfo, 0, uintptr(pid))
	if handle == 0 {
		return ""
	}
	defer procCloseHandle.Call(handle)

	buf := make([]uint16, syscall.MAX_PATH)
	size := uint32(len(buf))
	ret, _, _ := procQueryFullProcessImageNameW.Call(handle, 0,
		uintptr(unsafe.Pointer(&buf[0])), uintptr(unsafe.Pointer(&size)))
	if ret == 0 {
		return ""
	}

	name := filepath.Base(syscall.UTF16ToString(buf[:size]))
	return strings.TrimSuffix(name, ".exe")
}

func capture(id uint64) (*image.RGBA, error) {
	hwnd := uintptr(id)
	if alive, _, _ := procIsWindow.Call(hwnd); alive == 0 {
		return nil, fmt.Errorf("%w: window handle %#x", ErrWindowGone, id)
	}

	var rect winRect
	if ret, _, err := procGetWindowRect.Call(hwnd, uintptr(unsafe.Pointer(&rect))); ret == 0 {
		return nil, fmt.Errorf("%w: %v", ErrWindowGone, err)
	}
	w := int(rect.Right - rect.Left)
	h := int(rect.Bottom - rect.Top)
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("window has no drawable area (%dx%d)", w, h)
	}

	memDC, _, err := procCreateCompatibleDC.Call(0)
	if memDC == 0 {
		return nil, fmt.Errorf("CreateCompatibleDC: %w", err)
	}
	defer procDeleteDC.Call(memDC)

	info := bitmapInfo{
		Header: bitmapInfoHeader{
			Size:        uint32(unsafe.Sizeof(bitmapInfoHeader{})),
			Width:       int32(w),
			Height:      -int32(h), // negative for top-down rows
			Planes:      1,
			BitCount:    32,
			Compression: biRGB,
		},
	}
	var bits unsafe.Pointer
	bitmap, _, err := procCreateDIBSection.Call(memDC, uintptr(unsafe.Pointer(&info)),
		0, uintptr(unsafe.Pointer(&bits)), 0, 0)
	if bitmap == 0 || bits == nil {
		return nil, fmt.Errorf("CreateDIBSection: %w", err)
	}
	defer procDeleteObject.Call(bitmap)

	old, _, _ := procSelectObject.Call(memDC, bitmap)
	defer procSelectObject.Call(memDC, old)

	// PW_RENDERFULLCONTENT asks DWM for the composed surface, so covered
	// windows still capture their own contents.
	if ret, _, _ := procPrintWindow.Call(hwnd, memDC, printWindowRenderFullContent); ret == 0 {
		return nil, fmt.Errorf("%w: PrintWindow failed", ErrWindowGone)
	}

	data := unsafe.Slice((*byte)(bits), w*h*4)
	return bgraToRGBA(data, w, h, w*4), nil
}
