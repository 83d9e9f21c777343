//go:build tinygo

package flash

/*
#include <stdint.h>
#include <stddef.h>

// ROM table code macro - creates 16-bit code from two characters.
#define ROM_TABLE_CODE(c1, c2) ((c1) | ((c2) << 8))

#define ROM_FUNC_CONNECT_INTERNAL_FLASH ROM_TABLE_CODE('I', 'F')
#define ROM_FUNC_FLASH_EXIT_XIP         ROM_TABLE_CODE('E', 'X')
#define ROM_FUNC_FLASH_RANGE_ERASE      ROM_TABLE_CODE('R', 'E')
#define ROM_FUNC_FLASH_RANGE_PROGRAM    ROM_TABLE_CODE('R', 'P')
#define ROM_FUNC_FLASH_FLUSH_CACHE      ROM_TABLE_CODE('F', 'C')
#define ROM_FUNC_FLASH_ENTER_CMD_XIP    ROM_TABLE_CODE('C', 'X')

#define BOOTROM_FUNC_TABLE_OFFSET   0x14
#define BOOTROM_WELL_KNOWN_PTR_SIZE 2
#define BOOTROM_TABLE_LOOKUP_OFFSET (BOOTROM_FUNC_TABLE_OFFSET + BOOTROM_WELL_KNOWN_PTR_SIZE)

#define RT_FLAG_FUNC_ARM_SEC 0x0004

#define FLASH_SECTOR_ERASE_CMD 0x20

typedef void *(*rom_table_lookup_fn)(uint32_t code, uint32_t mask);
typedef void (*flash_connect_internal_fn)(void);
typedef void (*flash_exit_xip_fn)(void);
typedef void (*flash_range_erase_fn)(uint32_t addr, size_t count, uint32_t block_size, uint8_t block_cmd);
typedef void (*flash_range_program_fn)(uint32_t addr, const uint8_t *data, size_t count);
typedef void (*flash_flush_cache_fn)(void);
typedef void (*flash_enter_cmd_xip_fn)(void);

__attribute__((always_inline))
static void *rom_func_lookup_inline(uint32_t code) {
    rom_table_lookup_fn rom_table_lookup =
        (rom_table_lookup_fn)(uintptr_t)*(uint16_t*)(BOOTROM_TABLE_LOOKUP_OFFSET);
    return rom_table_lookup(code, RT_FLAG_FUNC_ARM_SEC);
}

// Resolved once, while XIP is still live (spec.md §4.1 step "resolve vendor
// ROM helper addresses once at initialization").
static flash_connect_internal_fn fn_connect;
static flash_exit_xip_fn fn_exit_xip;
static flash_range_erase_fn fn_erase;
static flash_range_program_fn fn_program;
static flash_flush_cache_fn fn_flush;
static flash_enter_cmd_xip_fn fn_enter_cmd_xip;

static void gateway_init(void) {
    fn_connect        = (flash_connect_internal_fn)rom_func_lookup_inline(ROM_FUNC_CONNECT_INTERNAL_FLASH);
    fn_exit_xip       = (flash_exit_xip_fn)rom_func_lookup_inline(ROM_FUNC_FLASH_EXIT_XIP);
    fn_erase          = (flash_range_erase_fn)rom_func_lookup_inline(ROM_FUNC_FLASH_RANGE_ERASE);
    fn_program        = (flash_range_program_fn)rom_func_lookup_inline(ROM_FUNC_FLASH_RANGE_PROGRAM);
    fn_flush          = (flash_flush_cache_fn)rom_func_lookup_inline(ROM_FUNC_FLASH_FLUSH_CACHE);
    fn_enter_cmd_xip  = (flash_enter_cmd_xip_fn)rom_func_lookup_inline(ROM_FUNC_FLASH_ENTER_CMD_XIP);
}

__attribute__((section(".ramfunc.flash_erase_range")))
static void gateway_erase(uint32_t offset, uint32_t count) {
    uint32_t status;
    __asm__ volatile ("mrs %0, primask" : "=r" (status));
    __asm__ volatile ("cpsid i");

    fn_connect();
    fn_exit_xip();
    fn_erase(offset, count, 4096, FLASH_SECTOR_ERASE_CMD);
    fn_flush();
    fn_enter_cmd_xip();

    __asm__ volatile ("msr primask, %0" : : "r" (status));
}

__attribute__((section(".ramfunc.flash_program_range")))
static void gateway_program(uint32_t offset, const uint8_t *data, uint32_t count) {
    uint32_t status;
    __asm__ volatile ("mrs %0, primask" : "=r" (status));
    __asm__ volatile ("cpsid i");

    fn_connect();
    fn_exit_xip();
    fn_program(offset, data, count);
    fn_flush();
    fn_enter_cmd_xip();

    __asm__ volatile ("msr primask, %0" : : "r" (status));
}
*/
import "C"

import (
	"errors"
	"unsafe"

	"github.com/ADNTIO/crispy-bootloader-rp2040-rs/internal/layout"
)

var (
	ErrUnaligned = errors.New("flash: offset/size not sector/page aligned")
)

var initialized bool

// gateway is the tinygo Gateway implementation talking to vendor ROM
// routines, matching ota.go's cgo wrapper style.
type gateway struct{}

// NewGateway returns the device-side flash Gateway. ROM helper addresses
// are resolved immediately, while XIP is still live.
func NewGateway() Gateway {
	if !initialized {
		C.gateway_init()
		initialized = true
	}
	return gateway{}
}

func (gateway) Erase(offset uint32, size uint32) error {
	if offset%layout.FlashSectorSize != 0 || size%layout.FlashSectorSize != 0 {
		return ErrUnaligned
	}
	C.gateway_erase(C.uint32_t(offset), C.uint32_t(size))
	return nil
}

func (gateway) Program(offset uint32, src []byte) error {
	if offset%layout.FlashPageSize != 0 {
		return ErrUnaligned
	}
	if len(src) == 0 {
		return nil
	}
	C.gateway_program(C.uint32_t(offset), (*C.uint8_t)(&src[0]), C.uint32_t(len(src)))
	return nil
}

func (gateway) Read(absAddr uint32, buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	src := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(absAddr))), len(buf))
	copy(buf, src)
	return nil
}
