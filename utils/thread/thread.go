package thread

/*
   #define _GNU_SOURCE
   #include <sched.h>
   #include <pthread.h>
   #include <unistd.h>
   #include <sys/syscall.h>

   int set_cpu_affinity(int core_id) {
       cpu_set_t cpuset;
       CPU_ZERO(&cpuset);
       CPU_SET(core_id, &cpuset);
       return pthread_setaffinity_np(pthread_self(), sizeof(cpu_set_t), &cpuset);
   }

   long current_thread_id(void) {
       return syscall(SYS_gettid);
   }
*/
import "C"

import "github.com/pkg/errors"

// SetCPUAffinity pins the calling OS thread to coreID. The caller must hold
// runtime.LockOSThread for the pin to stick to a goroutine.
func SetCPUAffinity(coreID int) error {
	if rc := C.set_cpu_affinity(C.int(coreID)); rc != 0 {
		return errors.Errorf("Can not pin thread to core %d (rc=%d)", coreID, int(rc))
	}
	return nil
}

// CurrentID returns the kernel id of the calling OS thread.
func CurrentID() int64 {
	return int64(C.current_thread_id())
}
