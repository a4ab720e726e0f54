package list

import (
	"fmt"
	"sync"
)

// List define las operaciones que usan el kernel y la memoria sobre colecciones ordenadas.
type List[T any] interface {
	Add(item T)          // Añadir un elemento al final de la lista
	Push(item T)         // Añadir un elemento al principio de la lista
	Dequeue() (T, error) // Eliminar y devolver el primer elemento de la lista
	Size() int           // Retornar el tamaño de la lista
}

// ArrayList implements List
type ArrayList[T any] struct {
	mu    sync.RWMutex
	items []T
}

// Add inserta un elemento al final de la lista.
//
// Ejemplo:
//
//	func main() {
//		list := &ArrayList[int]{}
//		list.Add(10)
//		list.Add(20)
//	}
func (list *ArrayList[T]) Add(item T) {
	list.mu.Lock()
	defer list.mu.Unlock()

	list.items = append(list.items, item)
}

// Push inserta un elemento al principio de la lista, de forma que sea el próximo en salir con Dequeue.
// El kernel lo usa para devolver entradas de la tabla de procesos a la lista de libres.
func (list *ArrayList[T]) Push(item T) {
	list.mu.Lock()
	defer list.mu.Unlock()

	list.items = append([]T{item}, list.items...)
}

// Dequeue elimina y devuelve el primer elemento de la cola.
// En caso de que la lista se encuentre vacía retorna el valor "cero" del tipo T y un error.
//
// Ejemplo:
//
//	func main() {
//		numbers := &list.ArrayList[int]{}
//		numbers.Add(10)
//		numbers.Add(20)
//		value, _ := numbers.Dequeue()
//		fmt.Println("Valor: ", value) //output: 10
//	}
func (list *ArrayList[T]) Dequeue() (T, error) {
	list.mu.Lock()
	defer list.mu.Unlock()

	if len(list.items) == 0 {
		var zero T
		return zero, fmt.Errorf("list is empty")
	}
	valor := list.items[0]
	list.items = list.items[1:]
	return valor, nil
}

// Size retorna la cantidad de elementos de la lista.
func (list *ArrayList[T]) Size() int {
	list.mu.RLock()
	defer list.mu.RUnlock()

	return len(list.items)
}
