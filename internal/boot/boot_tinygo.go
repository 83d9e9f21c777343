//go:build tinygo

package boot

/*
#include <stdint.h>
#include <string.h>

// load_and_jump copies count bytes from a flash-mapped source into a
// RAM-resident destination, relocates VTOR, reloads the main stack
// pointer, and branches to the copied image's reset vector. It never
// returns on success.
//
// Ordering matches boot.rs's load_and_jump: disable interrupts, copy,
// write VTOR, issue DSB+ISB so the new table is observed before any
// exception can be taken, reload MSP, then branch.
__attribute__((noreturn))
static void load_and_jump(uint32_t flash_addr, uint32_t ram_base, uint32_t copy_size, uint32_t vtor_addr) {
    __asm__ volatile ("cpsid i");

    memcpy((void *)(uintptr_t)ram_base, (const void *)(uintptr_t)flash_addr, copy_size);

    *(volatile uint32_t *)(uintptr_t)vtor_addr = ram_base;
    __asm__ volatile ("dsb");
    __asm__ volatile ("isb");

    uint32_t initial_sp   = *(volatile uint32_t *)(uintptr_t)ram_base;
    uint32_t reset_vector = *(volatile uint32_t *)(uintptr_t)(ram_base + 4);

    __asm__ volatile (
        "msr msp, %0 \n"
        "bx %1       \n"
        :
        : "r" (initial_sp), "r" (reset_vector)
    );

    for (;;) {
        __asm__ volatile ("wfi");
    }
}
*/
import "C"

// LoadAndJump copies layout.CopySize bytes from flashAddr into RAM,
// relocates the vector table, and branches to the copied image. It never
// returns.
func LoadAndJump(flashAddr uint32, l Layout) {
	C.load_and_jump(C.uint32_t(flashAddr), C.uint32_t(l.RAMBase), C.uint32_t(l.CopySize), C.uint32_t(l.VTORAddr))
}
