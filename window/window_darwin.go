//go:build darwin

package window

/*
#cgo LDFLAGS: -framework CoreGraphics -framework CoreFoundation
#include <CoreGraphics/CoreGraphics.h>
#include <CoreFoundation/CoreFoundation.h>
#include <stdint.h>
#include <stdlib.h>

typedef struct {
	uint32_t id;
	int32_t  width;
	int32_t  height;
	int32_t  onscreen;
	char     app[256];
	char     title[256];
} WinRecWindowInfo;

static void winrecCopyString(CFDictionaryRef dict, CFStringRef key, char *dst, size_t cap) {
	dst[0] = 0;
	CFStringRef s = (CFStringRef)CFDictionaryGetValue(dict, key);
	if (s == NULL) {
		return;
	}
	CFStringGetCString(s, dst, cap, kCFStringEncodingUTF8);
}

static int32_t winrecCopyInt(CFDictionaryRef dict, CFStringRef key) {
	CFNumberRef n = (CFNumberRef)CFDictionaryGetValue(dict, key);
	int32_t v = 0;
	if (n != NULL) {
		CFNumberGetValue(n, kCFNumberSInt32Type, &v);
	}
	return v;
}

static int WinRecListWindows(WinRecWindowInfo *out, int max, int includeHidden) {
	CGWindowListOption opt = kCGWindowListExcludeDesktopElements;
	if (!includeHidden) {
		opt |= kCGWindowListOptionOnScreenOnly;
	}
	CFArrayRef arr = CGWindowListCopyWindowInfo(opt, kCGNullWindowID);
	if (arr == NULL) {
		return 0;
	}

	int n = 0;
	CFIndex count = CFArrayGetCount(arr);
	for (CFIndex i = 0; i < count && n < max; i++) {
		CFDictionaryRef d = (CFDictionaryRef)CFArrayGetValueAtIndex(arr, i);
		// Layer 0 is the normal application window layer; everything else
		// is menu bar items, docks and overlays.
		if (winrecCopyInt(d, kCGWindowLayer) != 0) {
			continue;
		}

		WinRecWindowInfo *w = &out[n];
		w->id = (uint32_t)winrecCopyInt(d, kCGWindowNumber);
		winrecCopyString(d, kCGWindowOwnerName, w->app, sizeof(w->app));
		winrecCopyString(d, kCGWindowName, w->title, sizeof(w->title));

		CGRect bounds = CGRectZero;
		CFDictionaryRef boundsDict = (CFDictionaryRef)CFDictionaryGetValue(d, kCGWindowBounds);
		if (boundsDict != NULL) {
			CGRectMakeWithDictionaryRepresentation(boundsDict, &bounds);
		}
		w->width = (int32_t)bounds.size.width;
		w->height = (int32_t)bounds.size.height;

		CFBooleanRef onscreen = (CFBooleanRef)CFDictionaryGetValue(d, kCGWindowIsOnscreen);
		w->onscreen = (onscreen != NULL && CFBooleanGetValue(onscreen)) ? 1 : 0;
		n++;
	}

	CFRelease(arr);
	return n;
}

// WinRecCaptureWindow renders the window's current contents into a
// malloc'd RGBA buffer. Returns 0 on success, 1 when the window is gone,
// 2 on allocation failure.
static int WinRecCaptureWindow(uint32_t id, uint8_t **data, int32_t *width, int32_t *height) {
	CGImageRef image = CGWindowListCreateImage(CGRectNull,
		kCGWindowListOptionIncludingWindow, (CGWindowID)id,
		kCGWindowImageBoundsIgnoreFraming | kCGWindowImageNominalResolution);
	if (image == NULL) {
		return 1;
	}

	size_t w = CGImageGetWidth(image);
	size_t h = CGImageGetHeight(image);
	if (w == 0 || h == 0) {
		CGImageRelease(image);
		return 1;
	}

	uint8_t *buf = (uint8_t *)malloc(w * h * 4);
	if (buf == NULL) {
		CGImageRelease(image);
		return 2;
	}

	CGColorSpaceRef cs = CGColorSpaceCreateDeviceRGB();
	CGContextRef ctx = CGBitmapContextCreate(buf, w, h, 8, w * 4, cs,
		kCGImageAlphaPremultipliedLast | kCGBitmapByteOrder32Big);
	CGColorSpaceRelease(cs);
	if (ctx == NULL) {
		free(buf);
		CGImageRelease(image);
		return 2;
	}

	CGContextDrawImage(ctx, CGRectMake(0, 0, (CGFloat)w, (CGFloat)h), image);
	CGContextRelease(ctx);
	CGImageRelease(image);

	*data = buf;
	*width = (int32_t)w;
	*height = (int32_t)h;
	return 0;
}
*/
import "C"
import (
	"fmt"
	"image"
	"unsafe"
)

const maxListedWindows = 512

func list() ([]Window, error) {
	infos := make([]C.WinRecWindowInfo, maxListedWindows)
	n := int(C.WinRecListWindows(&infos[0], C.int(maxListedWindows), 1))

	windows := make([]Window, 0, n)
	for i := 0; i < n; i++ {
		info := &infos[i]
		windows = append(windows, Window{
			ID:     uint64(info.id),
			App:    C.GoString(&info.app[0]),
			Title:  C.GoString(&info.title[0]),
			Width:  int(info.width),
			Height: int(info.height),
			Hidden: info.onscreen == 0,
		})
	}
	return windows, nil
}

func capture(id uint64) (*image.RGBA, error) {
	var (
		data   *C.uint8_t
		width  C.int32_t
		height C.int32_t
	)

	switch rc := C.WinRecCaptureWindow(C.uint32_t(id), &data, &width, &height); rc {
	case 0:
	case 1:
		return nil, fmt.Errorf("%w: window id %d", ErrWindowGone, id)
	default:
		return nil, fmt.Errorf("window capture failed for id %d (code %d)", id, int(rc))
	}
	defer C.free(unsafe.Pointer(data))

	w, h := int(width), int(height)
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	copy(img.Pix, unsafe.Slice((*byte)(unsafe.Pointer(data)), w*h*4))
	return img, nil
}
