/*
Package streaming groups the CSV source and sink used by parcsv.

  - reader: streams a CSV file as field-name keyed records, one at a time
  - writer: writes result rows, each flushed whole before the next is accepted

Neither package loads a whole file into memory.
*/
package streaming
